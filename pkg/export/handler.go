package export

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/config"
	"github.com/nicktill/statvault/pkg/httpx"
	"github.com/nicktill/statvault/pkg/logging"
)

// Store is what the export and import endpoints need from the archive store.
type Store interface {
	Catalog
	Archiver
}

// Handler handles export/import HTTP endpoints
type Handler struct {
	exporter *Exporter
	importer *Importer
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewHandler creates a new export/import handler
func NewHandler(store Store, clock clockwork.Clock, logger *zap.Logger) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{
		exporter: NewExporter(store, clock),
		importer: NewImporter(store, clock),
		clock:    clock,
		logger:   logging.OrNop(logger).Named("export"),
	}
}

// HandleExport handles GET /v1/archives/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - type: data type filter (optional)
//   - tag: required tag, repeatable (optional)
//   - start, end: RFC3339 bounds on the archived data's dates (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Invalid format. Must be 'json' or 'csv'")
		return
	}

	start, err := parseTimeParam(query.Get("start"))
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid start: %v", err))
		return
	}
	end, err := parseTimeParam(query.Get("end"))
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("invalid end: %v", err))
		return
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "start must not be after end")
		return
	}

	opts := ExportOptions{
		DataType: query.Get("type"),
		Tags:     query["tag"],
		Start:    start,
		End:      end,
		Format:   format,
	}

	timestamp := h.clock.Now().UTC().Format("20060102-150405")
	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/csv")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=statvault-catalog-%s.%s", timestamp, format))

	var result *ExportResult
	if format == "json" {
		result, err = h.exporter.ExportToJSON(r.Context(), w, opts)
	} else {
		result, err = h.exporter.ExportToCSV(r.Context(), w, opts)
	}
	if err != nil {
		h.logger.Error("export failed", zap.String("format", format), zap.Error(err))
		httpx.RespondErrorString(w, http.StatusInternalServerError, fmt.Sprintf("Export failed: %v", err))
		return
	}

	h.logger.Info("exported archive catalog",
		zap.Int("archives", result.ArchivesExported),
		zap.String("format", format),
		zap.Bool("truncated", result.Truncated))
}

// HandleImport handles POST /v1/archives/import
// Accepts an ImportData document and archives each item.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBytes)

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body)
	if err != nil {
		h.logger.Error("import failed", zap.Error(err))
		httpx.RespondError(w, err)
		return
	}

	if len(result.Errors) > 0 {
		h.logger.Warn("import completed with rejected items",
			zap.Int("rejected", len(result.Errors)),
			zap.Strings("first", firstN(result.Errors, 10)))
	}
	h.logger.Info("imported datasets",
		zap.Int("archives", result.ArchivesCreated),
		zap.Int("original_bytes", result.OriginalBytes),
		zap.Int("archived_bytes", result.ArchivedBytes))

	httpx.RespondJSON(w, http.StatusOK, result)
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// parseTimeParam accepts RFC3339 or a bare datetime. Empty means unbounded.
func parseTimeParam(param string) (time.Time, error) {
	if param == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", param)
}
