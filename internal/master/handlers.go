package master

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mattjoyce/warden/internal/job"
	"github.com/mattjoyce/warden/internal/jobcache"
	"github.com/mattjoyce/warden/internal/protocol"
)

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// JobResponse is returned by GET /v1/jobs/{jid}.
type JobResponse struct {
	JID     string            `json:"jid"`
	Returns []jobcache.Record `json:"returns"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleReturn handles POST /v1/return. Returns relayed with the placeholder
// job id get a fresh id from the master.
func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	load, err := protocol.DecodeLoad(body)
	if err != nil {
		s.metrics.observeRejected("decode")
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt := protocol.Receipt{Status: "accepted", ReceiptID: uuid.NewString()}

	switch load.Cmd {
	case protocol.CmdReturn:
		res := *load.Result
		res.ID = load.ID
		if res.JID == job.RelayJID || !job.ValidID(res.JID) {
			res.JID = job.NewID(s.now())
		}
		if err := s.store.SaveReturn(r.Context(), res); err != nil {
			s.metrics.observeRejected("store")
			s.logger.Error("failed to store return", "jid", res.JID, "id", res.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store return")
			return
		}
		s.metrics.observeReturn(res.Fun, res.Success)
		s.logger.Info("return received", "jid", res.JID, "id", res.ID, "fun", res.Fun, "retcode", res.Retcode)
		receipt.JID = res.JID

	case protocol.CmdEvent:
		if _, err := s.store.SaveEvent(r.Context(), load.ID, load.Tag, load.Data); err != nil {
			s.metrics.observeRejected("store")
			s.logger.Error("failed to store event", "tag", load.Tag, "id", load.ID, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to store event")
			return
		}
		s.metrics.observeEvent()
		s.logger.Info("event received", "tag", load.Tag, "id", load.ID)
	}

	respondJSON(w, http.StatusAccepted, receipt)
}

// handleGetJob handles GET /v1/jobs/{jid}.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jid := chi.URLParam(r, "jid")
	if !job.ValidID(jid) {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	recs, err := s.store.Returns(r.Context(), jid)
	if errors.Is(err, jobcache.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load job", "jid", jid, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, JobResponse{JID: jid, Returns: recs})
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
