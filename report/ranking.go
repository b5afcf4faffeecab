package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/viktsys/bolsaingest/market"
	"github.com/viktsys/bolsaingest/models"
)

const rankingSheet = "Ranking"

var rankingHeader = []interface{}{
	"Posición", "Símbolo", "Nombre", "Precio", "Var. Abs", "Var. %", "Volumen", "Monto Efectivo", "Hora",
}

// WriteRanking writes the leaderboard as an xlsx workbook to w.
func WriteRanking(w io.Writer, entries []models.RankEntry, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rankingSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	title := fmt.Sprintf("Bolsa de Caracas - ranking al %s", generatedAt.In(market.Zone).Format("02/01/2006 15:04"))
	if err := f.SetCellValue(rankingSheet, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(rankingSheet, "A3", &rankingHeader); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(rankingSheet, "A1", "I3", bold); err != nil {
		return err
	}

	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		row := []interface{}{
			e.Position,
			e.Symbol,
			e.Name,
			e.Price.InexactFloat64(),
			e.AbsChange.InexactFloat64(),
			e.RelChange.InexactFloat64(),
			e.Volume.InexactFloat64(),
			e.CashAmount.InexactFloat64(),
			e.TimeOfQuote,
		}
		if err := f.SetSheetRow(rankingSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(rankingSheet, "C", "C", 36); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
