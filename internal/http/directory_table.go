package httpapi

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/service"
)

// 支持的表格格式
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// formatFromFilename 按扩展名选择格式
func formatFromFilename(name string) (string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	}
	return "", domain.Validationf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(name))
}

// DecodeTable 解析上传的表格
func DecodeTable(format string, r io.Reader) ([]service.Row, error) {
	switch format {
	case FormatCSV:
		return DecodeDirectoryCSV(r)
	case FormatXLSX:
		return DecodeDirectoryExcel(r)
	}
	return nil, domain.Validationf("unsupported format %q", format)
}

// EncodeTable 生成导出文件，返回内容与 Content-Type
func EncodeTable(format string, rows []service.Row) ([]byte, string, error) {
	switch format {
	case FormatCSV:
		b, err := EncodeDirectoryCSV(rows)
		return b, "text/csv; charset=utf-8", err
	case FormatXLSX:
		b, err := EncodeDirectoryExcel(rows)
		return b, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	}
	return nil, "", domain.Validationf("unsupported format %q", format)
}

// rowsFromRecords 第一行为表头；FullName 列必须存在，未知列忽略，全空行跳过
func rowsFromRecords(records [][]string) ([]service.Row, error) {
	if len(records) == 0 {
		return nil, domain.Validationf("file is empty")
	}

	headerMap := make(map[string]int)
	for i, h := range records[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := headerMap[h]; !dup {
			headerMap[h] = i
		}
	}
	if _, ok := headerMap[service.ColumnFullName]; !ok {
		return nil, domain.Validationf("missing required column %s", service.ColumnFullName)
	}

	rows := make([]service.Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blankRecord(rec) {
			continue
		}
		fields := make(map[string]string, len(service.Columns))
		for _, col := range service.Columns {
			if idx, ok := headerMap[col]; ok && idx < len(rec) {
				fields[col] = rec[idx]
			}
		}
		rows = append(rows, service.RowFromFields(fields))
	}
	return rows, nil
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
