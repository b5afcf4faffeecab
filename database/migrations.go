package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/viktsys/bolsaingest/models"
)

// OptimizeIndexes crea los índices usados por la poda de retención.
// The (symbol, captured_at) index comes from the model tags; retention
// pruning filters on captured_at alone and needs its own index.
func OptimizeIndexes(db *gorm.DB) error {
	const name = "idx_snapshots_captured_at"
	if db.Migrator().HasIndex(&models.PriceSnapshot{}, name) {
		return nil
	}
	if err := db.Exec("CREATE INDEX " + name + " ON price_snapshots (captured_at)").Error; err != nil {
		return fmt.Errorf("failed to create captured_at index: %w", err)
	}
	return nil
}
