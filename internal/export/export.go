// Package export renders a seminar's registrant list as CSV or XLSX.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/ce-seminars/backend/internal/models"
)

// Formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

const (
	dateLayout = "2006-01-02"
	sheetName  = "Registrants"
)

// Header is the column order of every export.
var Header = []string{
	"name", "email", "registration_date", "sessions_completed", "sessions_remaining", "total_ce_credits", "status",
}

// Row is one registrant line.
type Row struct {
	Name              string
	Email             string
	RegistrationDate  string
	SessionsCompleted int
	SessionsRemaining int
	TotalCredits      int
	Status            string
}

// Rows flattens registrations into export rows, preserving order.
func Rows(list []models.RegistrationWithUser) []Row {
	rows := make([]Row, 0, len(list))
	for _, r := range list {
		rows = append(rows, Row{
			Name:              r.FullName,
			Email:             r.Email,
			RegistrationDate:  r.RegisteredAt.UTC().Format(dateLayout),
			SessionsCompleted: r.SessionsCompleted,
			SessionsRemaining: r.SessionsRemaining,
			TotalCredits:      r.TotalCredits,
			Status:            string(r.Status),
		})
	}
	return rows
}

func (r Row) strings() []string {
	return []string{
		r.Name,
		r.Email,
		r.RegistrationDate,
		strconv.Itoa(r.SessionsCompleted),
		strconv.Itoa(r.SessionsRemaining),
		strconv.Itoa(r.TotalCredits),
		r.Status,
	}
}

// WriteCSV writes the header and rows as CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.strings()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// XLSX renders rows into a single-sheet workbook.
func XLSX(title string, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("new sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetColWidth(sheetName, "A", "B", 28)
	_ = f.SetColWidth(sheetName, "C", "C", 16)
	_ = f.SetColWidth(sheetName, "D", "G", 18)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	_ = f.SetCellStyle(sheetName, "A1", last, headerStyle)

	for i, r := range rows {
		line := i + 2
		values := []interface{}{r.Name, r.Email, r.RegistrationDate, r.SessionsCompleted, r.SessionsRemaining, r.TotalCredits, r.Status}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, line)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("set %s: %w", cell, err)
			}
		}
	}
	if title != "" {
		f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "CE Seminars"})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
