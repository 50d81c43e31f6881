package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	appErrors "github.com/flowsend/campaign-worker/internal/errors"
)

// phoneColumns are the accepted phone header spellings, checked in order
// with exact, case-sensitive matches.
var phoneColumns = []string{"phone", "phoneNumber", "phone_number", "mobile"}

// ParseRecipientFile turns the raw file bytes into header-keyed rows. The
// format is picked by file extension; anything but CSV and Excel is fatal
// for the campaign.
func ParseRecipientFile(fileURL string, data []byte) ([]map[string]string, error) {
	name := strings.ToLower(fileURL)
	switch {
	case strings.HasSuffix(name, ".csv"):
		return parseCSV(data)
	case strings.HasSuffix(name, ".xlsx"), strings.HasSuffix(name, ".xls"):
		return parseSpreadsheet(data)
	default:
		return nil, appErrors.NewUnsupportedFileFormat(fileURL)
	}
}

func parseCSV(data []byte) ([]map[string]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	rows := []map[string]string{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows, nil
}

// parseSpreadsheet reads the first sheet of an Excel workbook, first row
// as header.
func parseSpreadsheet(data []byte) ([]map[string]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	raw, err := book.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	header := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, record := range raw[1:] {
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	return rows, nil
}

func rowFromRecord(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ExtractPhone finds the row's phone number under the accepted header
// names and normalizes it to digits only. Rows whose normalized number has
// fewer than 10 digits are rejected.
func ExtractPhone(row map[string]string) (string, bool) {
	for _, col := range phoneColumns {
		raw, ok := row[col]
		if !ok || raw == "" {
			continue
		}
		normalized := NormalizePhone(coerceCell(raw))
		if len(normalized) < 10 {
			return "", false
		}
		return normalized, true
	}
	return "", false
}

// NormalizePhone strips everything that is not a digit.
func NormalizePhone(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// coerceCell rewrites numeric cell values to plain digit strings. Excel
// renders large numbers in scientific notation ("5.551234567E+09").
func coerceCell(raw string) string {
	if !strings.ContainsAny(raw, "eE.") {
		return raw
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Variables returns everything in the row except the phone columns, as the
// open string-keyed map delivered to the session engine.
func Variables(row map[string]string) map[string]any {
	vars := make(map[string]any, len(row))
	for k, v := range row {
		if isPhoneColumn(k) {
			continue
		}
		vars[k] = v
	}
	if len(vars) == 0 {
		return nil
	}
	return vars
}

func isPhoneColumn(name string) bool {
	for _, col := range phoneColumns {
		if name == col {
			return true
		}
	}
	return false
}
