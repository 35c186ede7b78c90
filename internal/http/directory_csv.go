package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/service"
)

// EncodeDirectoryCSV 导出 CSV（UTF-8，固定列顺序）
func EncodeDirectoryCSV(rows []service.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(service.Columns); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, row := range rows {
		if err := w.Write(row.Values()); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDirectoryCSV 解析 CSV（列数可不一致）
func DecodeDirectoryCSV(r io.Reader) ([]service.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, domain.Validationf("failed to parse CSV file: %v", err)
	}
	return rowsFromRecords(records)
}
