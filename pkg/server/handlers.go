package server

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/nicktill/statvault/pkg/archive"
	"github.com/nicktill/statvault/pkg/compression"
	"github.com/nicktill/statvault/pkg/config"
	archerr "github.com/nicktill/statvault/pkg/errors"
	"github.com/nicktill/statvault/pkg/httpx"
	"github.com/nicktill/statvault/pkg/scheduler"
	"github.com/nicktill/statvault/pkg/server/monitor"
)

// Version is reported by the health endpoint and the CLI.
var Version = "dev"

// ArchiveRequest is the body of POST /v1/archives.
type ArchiveRequest struct {
	DataType string          `json:"dataType"`
	Data     any             `json:"data"`
	Options  archive.Options `json:"options"`
}

// DeleteResponse is returned by DELETE /v1/archives/{id}.
type DeleteResponse struct {
	Success   bool   `json:"success"`
	ArchiveID string `json:"archiveId"`
}

// ConfigPatch is the body of PATCH /v1/config. Absent sections are unchanged.
type ConfigPatch struct {
	Compression *compression.Patch `json:"compression,omitempty"`
	Archive     *archive.Patch     `json:"archive,omitempty"`
}

// ConfigView is the active runtime configuration.
type ConfigView struct {
	Compression compression.Config `json:"compression"`
	Archive     archive.Config     `json:"archive"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string                         `json:"status"`
	Version   string                         `json:"version"`
	Uptime    string                         `json:"uptime"`
	Scheduler map[string]scheduler.JobStatus `json:"scheduler,omitempty"`
}

// decodeBody reads a JSON body. An empty body leaves v untouched when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBytes))
	if err != nil {
		return archerr.Wrap(err, archerr.CodeServerRequestInvalid, "failed to read request body")
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		if optional {
			return nil
		}
		return archerr.New(archerr.CodeServerRequestInvalid, "request body is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return archerr.Wrap(err, archerr.CodeServerRequestInvalid, "invalid request body")
	}
	return nil
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req ArchiveRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ArchiveTimeout)
	defer cancel()

	res, err := s.store.Archive(ctx, req.Data, req.DataType, req.Options)
	if err != nil {
		s.logger.Warn("archive request failed", zap.String("data_type", req.DataType), zap.Error(err))
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var opts archive.RestoreOptions
	if err := decodeBody(w, r, &opts, true); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.RestoreTimeout)
	defer cancel()

	res, err := s.store.Restore(ctx, id, opts)
	if err != nil {
		if !archerr.IsNotFound(err) {
			s.logger.Warn("restore request failed", zap.String("archive_id", id), zap.Error(err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := s.store.Get(id)
	if !ok {
		httpx.RespondError(w, archerr.New(archerr.CodeArchiveNotFound, "archive not found", archerr.FieldArchiveID(id)))
		return
	}
	httpx.RespondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListArchives(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, s.store.List())
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	ctx, cancel := context.WithTimeout(r.Context(), config.ArchiveTimeout)
	defer cancel()

	if err := s.store.Delete(ctx, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, DeleteResponse{Success: true, ArchiveID: id})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q archive.Query
	if err := decodeBody(w, r, &q, true); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if q.Limit <= 0 {
		q.Limit = config.DefaultSearchSize
	}
	httpx.RespondJSON(w, http.StatusOK, s.store.Search(q))
}

func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, s.store.Statistics())
}

func (s *Server) handleCompressionStats(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		httpx.RespondErrorString(w, http.StatusNotFound, "compression engine disabled")
		return
	}
	httpx.RespondJSON(w, http.StatusOK, s.engine.Statistics())
}

func (s *Server) configView() ConfigView {
	view := ConfigView{Archive: s.store.Config()}
	if s.engine != nil {
		view.Compression = s.engine.Config()
	}
	return view
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	httpx.RespondJSON(w, http.StatusOK, s.configView())
}

// handlePatchConfig applies the compression section before the archive
// section. A rejected section leaves it unchanged.
func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch ConfigPatch
	if err := decodeBody(w, r, &patch, false); err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ArchiveTimeout)
	defer cancel()

	if patch.Compression != nil {
		if s.engine == nil {
			httpx.RespondErrorString(w, http.StatusBadRequest, "compression engine disabled")
			return
		}
		if _, err := s.engine.UpdateConfig(ctx, *patch.Compression); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if patch.Archive != nil {
		if _, err := s.store.UpdateConfig(ctx, *patch.Archive); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	httpx.RespondJSON(w, http.StatusOK, s.configView())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
		Uptime:  s.clock.Since(s.started).Round(time.Second).String(),
	}
	statusCode := http.StatusOK
	if s.scheduler != nil {
		response.Scheduler = s.scheduler.Status()
		if !s.scheduler.Healthy() {
			response.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	httpx.RespondJSON(w, statusCode, response)
}

// StorageReport is returned by GET /v1/storage. Disk is only reported for
// on-disk backends.
type StorageReport struct {
	Keys      uint64         `json:"keys"`
	SizeBytes uint64         `json:"size_bytes"`
	Disk      *monitor.Usage `json:"disk,omitempty"`
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.kv.Stats(r.Context())
	if err != nil {
		httpx.RespondError(w, archerr.Wrap(err, archerr.CodeStorageReadFailure, "failed to read storage stats"))
		return
	}
	report := StorageReport{Keys: stats.Keys, SizeBytes: stats.SizeBytes}
	if s.monitor != nil {
		usage, err := s.monitor.Usage()
		if err != nil {
			httpx.RespondError(w, archerr.Wrap(err, archerr.CodeStorageReadFailure, "failed to measure data directory"))
			return
		}
		report.Disk = &usage
	}
	httpx.RespondJSON(w, http.StatusOK, report)
}
