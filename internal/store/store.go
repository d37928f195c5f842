// Package store persists per-instrument trading configuration and exit
// ladder definitions using Gorm + SQLite. The execution core only ever reads
// from it; writes come through the HTTP config endpoints.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"riptide/internal/executor"
)

// ErrNotFound reports a missing per-instrument record.
var ErrNotFound = errors.New("store: not found")

type tradingConfigModel struct {
	ID                 uint   `gorm:"primaryKey"`
	Instrument         string `gorm:"uniqueIndex;size:32"`
	Leverage           int
	WalletAllocation   float64
	ChartTimeframe     string `gorm:"size:16"`
	VolatilityLookback int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (tradingConfigModel) TableName() string { return "trading_configs" }

type ladderEntryModel struct {
	ID            uint   `gorm:"primaryKey"`
	Instrument    string `gorm:"index;size:32"`
	Seq           int
	Tier          string `gorm:"size:8"`
	VolMultiple   float64
	CloseFraction *float64
	CreatedAt     time.Time
}

func (ladderEntryModel) TableName() string { return "ladder_entries" }

type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tradingConfigModel{}, &ladderEntryModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: keep connection count low, contention lower.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TradingConfig loads the per-instrument account configuration.
func (s *Store) TradingConfig(ctx context.Context, instrument string) (executor.AccountConfig, error) {
	var m tradingConfigModel
	err := s.db.WithContext(ctx).Where("instrument = ?", key(instrument)).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return executor.AccountConfig{}, ErrNotFound
	}
	if err != nil {
		return executor.AccountConfig{}, fmt.Errorf("store: loading trading config for %s: %w", instrument, err)
	}
	return executor.AccountConfig{
		Instrument:         m.Instrument,
		Leverage:           m.Leverage,
		WalletAllocation:   m.WalletAllocation,
		ChartTimeframe:     m.ChartTimeframe,
		VolatilityLookback: m.VolatilityLookback,
	}, nil
}

// SaveTradingConfig upserts the configuration keyed by instrument.
func (s *Store) SaveTradingConfig(ctx context.Context, cfg executor.AccountConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m := tradingConfigModel{
		Instrument:         key(cfg.Instrument),
		Leverage:           cfg.Leverage,
		WalletAllocation:   cfg.WalletAllocation,
		ChartTimeframe:     cfg.ChartTimeframe,
		VolatilityLookback: cfg.VolatilityLookback,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"leverage", "wallet_allocation", "chart_timeframe", "volatility_lookback", "updated_at",
		}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("store: saving trading config for %s: %w", cfg.Instrument, err)
	}
	return nil
}

// Ladder returns the instrument's exit ladder in configured order.
func (s *Store) Ladder(ctx context.Context, instrument string) (executor.LadderConfig, error) {
	var rows []ladderEntryModel
	err := s.db.WithContext(ctx).
		Where("instrument = ?", key(instrument)).
		Order("seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("store: loading ladder for %s: %w", instrument, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	ladder := make(executor.LadderConfig, 0, len(rows))
	for _, row := range rows {
		tier, err := executor.ParseLadderTier(row.Tier)
		if err != nil {
			return nil, fmt.Errorf("store: ladder row %d for %s: %w", row.ID, instrument, err)
		}
		ladder = append(ladder, executor.LadderEntry{
			Tier:          tier,
			VolMultiple:   row.VolMultiple,
			CloseFraction: row.CloseFraction,
		})
	}
	return ladder, nil
}

// ReplaceLadder swaps the instrument's whole ladder atomically.
func (s *Store) ReplaceLadder(ctx context.Context, instrument string, ladder executor.LadderConfig) error {
	if err := ladder.Validate(); err != nil {
		return err
	}
	inst := key(instrument)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("instrument = ?", inst).Delete(&ladderEntryModel{}).Error; err != nil {
			return fmt.Errorf("store: clearing ladder for %s: %w", instrument, err)
		}
		for i, entry := range ladder {
			row := ladderEntryModel{
				Instrument:    inst,
				Seq:           i,
				Tier:          entry.Tier.String(),
				VolMultiple:   entry.VolMultiple,
				CloseFraction: entry.CloseFraction,
			}
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("store: writing ladder row %d for %s: %w", i, instrument, err)
			}
		}
		return nil
	})
}

func key(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
