package pricefeed

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PriceRecord is one published price, kept for audit.
type PriceRecord struct {
	ID          uint   `gorm:"primaryKey"`
	SecID       string `gorm:"index"`
	UnitPrice   string
	Source      string
	Nonce       uint64
	PublishedAt time.Time `gorm:"index"`
}

// Store is the sqlite-backed history of published prices.
type Store struct {
	db *gorm.DB
}

// OpenStore opens (and migrates) the history database at path. Use ":memory:"
// for tests.
func OpenStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("pricefeed: open store: %w", err)
	}
	if err := db.AutoMigrate(&PriceRecord{}); err != nil {
		return nil, fmt.Errorf("pricefeed: migrate store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one published price.
func (s *Store) Record(secID string, unitPrice *big.Int, source string, nonce uint64, publishedAt time.Time) error {
	record := PriceRecord{
		SecID:       secID,
		UnitPrice:   unitPrice.String(),
		Source:      source,
		Nonce:       nonce,
		PublishedAt: publishedAt,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return fmt.Errorf("pricefeed: record price: %w", err)
	}
	return nil
}

// Latest returns the most recently published record for one security.
func (s *Store) Latest(secID string) (*PriceRecord, error) {
	var record PriceRecord
	err := s.db.Where("sec_id = ?", secID).Order("published_at DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pricefeed: latest price: %w", err)
	}
	return &record, nil
}

// History returns up to limit records for one security, newest first.
func (s *Store) History(secID string, limit int) ([]PriceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []PriceRecord
	err := s.db.Where("sec_id = ?", secID).Order("published_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("pricefeed: price history: %w", err)
	}
	return records, nil
}
