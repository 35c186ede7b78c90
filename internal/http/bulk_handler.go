package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/limbovvv/phone-directly/internal/domain"
	"github.com/limbovvv/phone-directly/internal/service"
)

// BulkHandler 导入导出 API（仅 admin）
type BulkHandler struct {
	Bulk           service.BulkService
	Logger         *zap.Logger
	ImportMaxBytes int64
}

func NewBulkHandler(bulk service.BulkService, importMaxBytes int64, logger *zap.Logger) *BulkHandler {
	return &BulkHandler{Bulk: bulk, Logger: logger, ImportMaxBytes: importMaxBytes}
}

// Export GET /api/v1/export?format=csv|xlsx
func (h *BulkHandler) Export(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "export", err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = FormatXLSX
	}
	if format != FormatCSV && format != FormatXLSX {
		writeError(w, r, h.Logger, "export", domain.Validationf("unsupported format %q", format))
		return
	}

	rows, err := h.Bulk.ExportRows(r.Context(), p)
	if err != nil {
		writeError(w, r, h.Logger, "export", err)
		return
	}
	data, contentType, err := EncodeTable(format, rows)
	if err != nil {
		writeError(w, r, h.Logger, "export", err)
		return
	}

	filename := fmt.Sprintf("phone_directory_%s.%s", time.Now().Format("20060102_150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import POST /api/v1/import (multipart/form-data, field "file")
// 行级错误在结果中返回；文件级错误返回 400
func (h *BulkHandler) Import(w http.ResponseWriter, r *http.Request) {
	p, err := requireAdmin(r)
	if err != nil {
		writeError(w, r, h.Logger, "import", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.ImportMaxBytes)
	if err := r.ParseMultipartForm(h.ImportMaxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, Fail(fmt.Sprintf("file exceeds %d bytes", h.ImportMaxBytes)))
			return
		}
		writeJSON(w, http.StatusBadRequest, Fail("failed to parse form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("file not found in request"))
		return
	}
	defer file.Close()

	format, err := formatFromFilename(header.Filename)
	if err != nil {
		writeError(w, r, h.Logger, "import", err)
		return
	}
	rows, err := DecodeTable(format, file)
	if err != nil {
		writeError(w, r, h.Logger, "import", err)
		return
	}

	result, err := h.Bulk.ImportRows(r.Context(), p, rows)
	if err != nil {
		writeError(w, r, h.Logger, "import", err)
		return
	}
	h.Logger.Info("Directory imported",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("file", header.Filename),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("errors", len(result.Errors)),
	)
	writeJSON(w, http.StatusOK, Ok(result))
}
