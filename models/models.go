package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot representa el estado de un instrumento de la Bolsa de Caracas
// en un ciclo de captura. Las filas nunca se actualizan.
// CapturedAt lo fija el ciclo de ingesta; la columna no tiene DEFAULT.
type PriceSnapshot struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Symbol      string          `gorm:"size:20;not null;index:idx_snapshots_symbol_captured,priority:1" json:"simbolo"`
	Name        string          `gorm:"size:120" json:"nombre"`
	Price       decimal.Decimal `gorm:"type:numeric(20,4)" json:"precio"`
	AbsChange   decimal.Decimal `gorm:"type:numeric(20,4)" json:"var_abs"`
	RelChange   decimal.Decimal `gorm:"type:numeric(20,4)" json:"var_rel"`
	Volume      decimal.Decimal `gorm:"type:numeric(24,4)" json:"volumen"`
	CashAmount  decimal.Decimal `gorm:"type:numeric(24,4)" json:"monto_efectivo"`
	TimeOfQuote string          `gorm:"size:20" json:"hora"`
	IconURL     string          `gorm:"size:255" json:"icono"`
	CapturedAt  time.Time       `gorm:"not null;index:idx_snapshots_symbol_captured,priority:2" json:"fecha_registro"`
}

// TableName keeps the table name stable regardless of naming strategy.
func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}

// HistoryPoint is one point of a historical price series.
type HistoryPoint struct {
	Price       decimal.Decimal `json:"precio"`
	TimeOfQuote string          `json:"hora"`
	CapturedAt  time.Time       `json:"fecha_registro"`
}

// RankEntry posiciona un instrumento en el ranking por variación relativa
type RankEntry struct {
	Position int `json:"posicion"`
	PriceSnapshot
}
