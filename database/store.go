package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/viktsys/bolsaingest/models"
)

// DefaultBatchSize bounds the rows per INSERT statement of a cycle.
const DefaultBatchSize = 500

// Store is the single writer / many readers access path to price_snapshots.
type Store struct {
	db        *gorm.DB
	batchSize int
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, batchSize: DefaultBatchSize}
}

// WithBatchSize returns a copy of the store inserting n rows per statement.
func (s *Store) WithBatchSize(n int) *Store {
	if n < 1 {
		n = 1
	}
	cp := *s
	cp.batchSize = n
	return &cp
}

// SaveCycle appends one cycle of snapshots and deletes every row captured
// before cutoff. Both happen in one transaction: on any error nothing from
// this cycle is persisted and no row is pruned.
func (s *Store) SaveCycle(ctx context.Context, snaps []models.PriceSnapshot, cutoff time.Time) (inserted, pruned int64, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(snaps) > 0 {
			res := tx.CreateInBatches(&snaps, s.batchSize)
			if res.Error != nil {
				return res.Error
			}
			inserted = res.RowsAffected
		}

		res := tx.Where("captured_at < ?", cutoff).Delete(&models.PriceSnapshot{})
		if res.Error != nil {
			return res.Error
		}
		pruned = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, pruned, nil
}

// Query combinada: para cada símbolo, la fila con mayor captured_at; en
// empate gana el id más alto.
const latestQuery = `
	SELECT s.* FROM price_snapshots s
	WHERE s.id = (
		SELECT s2.id FROM price_snapshots s2
		WHERE s2.symbol = s.symbol
		ORDER BY s2.captured_at DESC, s2.id DESC
		LIMIT 1
	)
	ORDER BY s.symbol ASC
`

// Latest returns the most recent snapshot of every symbol, ordered by symbol.
func (s *Store) Latest(ctx context.Context) ([]models.PriceSnapshot, error) {
	rows := []models.PriceSnapshot{}
	if err := s.db.WithContext(ctx).Raw(latestQuery).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// Window returns the rows of symbol captured in [from, to], oldest first.
func (s *Store) Window(ctx context.Context, symbol string, from, to time.Time) ([]models.PriceSnapshot, error) {
	rows := []models.PriceSnapshot{}
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND captured_at >= ? AND captured_at <= ?", symbol, from, to).
		Order("captured_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Count returns the number of stored snapshots.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.PriceSnapshot{}).Count(&n).Error
	return n, err
}

// Ping checks the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
