// Package report кодирует агрегированный отчёт банка крови в файл xlsx.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mmeshcher/bloodbank-system/internal/service"
)

// WriteXLSX записывает отчёт в формате xlsx: по листу на срез реестра,
// сводку донаций и сводку заявок.
func WriteXLSX(w io.Writer, rep *service.Report) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	inventorySheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(inventorySheet, "Current Inventory"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	inventoryRows := make([][]interface{}, 0, len(rep.Inventory)+1)
	inventoryRows = append(inventoryRows, []interface{}{"Blood Group", "Units Available", "Status"})
	for _, it := range rep.Inventory {
		inventoryRows = append(inventoryRows, []interface{}{it.BloodGroup, it.Units, string(it.Status)})
	}
	if err := writeSheet(f, "Current Inventory", inventoryRows); err != nil {
		return err
	}

	donationRows := make([][]interface{}, 0, len(rep.Donations)+1)
	donationRows = append(donationRows, []interface{}{"Blood Group", "Total Donations", "Total Units"})
	for _, d := range rep.Donations {
		donationRows = append(donationRows, []interface{}{d.BloodGroup, d.Count, d.Units})
	}
	if _, err := f.NewSheet("Donations Summary"); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	if err := writeSheet(f, "Donations Summary", donationRows); err != nil {
		return err
	}

	requestRows := make([][]interface{}, 0, len(rep.Requests)+1)
	requestRows = append(requestRows, []interface{}{"Blood Group", "Total Requests", "Total Units Required"})
	for _, r := range rep.Requests {
		requestRows = append(requestRows, []interface{}{r.BloodGroup, r.Count, r.Units})
	}
	if _, err := f.NewSheet("Requests Summary"); err != nil {
		return fmt.Errorf("new sheet: %w", err)
	}
	if err := writeSheet(f, "Requests Summary", requestRows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("set row: %w", err)
		}
	}
	return nil
}
