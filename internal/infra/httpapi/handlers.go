package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/wire"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type submitResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

type cancelResponse struct {
	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`
}

type environmentResponse struct {
	ID            string       `json:"id"`
	Language      string       `json:"language"`
	Version       string       `json:"version,omitempty"`
	Status        string       `json:"status"`
	Compiled      bool         `json:"compiled"`
	DefaultLimits *wire.Limits `json:"default_limits,omitempty"`
	MaxLimits     *wire.Limits `json:"max_limits,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEnvironments(w http.ResponseWriter, _ *http.Request) {
	envs := s.envs.List()
	out := make([]environmentResponse, 0, len(envs))
	for _, env := range envs {
		status := env.Status
		if status == "" {
			status = execution.EnvironmentActive
		}
		out = append(out, environmentResponse{
			ID:            string(env.ID),
			Language:      env.Language,
			Version:       env.Version,
			Status:        string(status),
			Compiled:      env.Compiled(),
			DefaultLimits: wire.FromLimits(env.DefaultLimits),
			MaxLimits:     wire.FromLimits(env.MaxLimits),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var doc wire.Submission
	if err := decodeJSON(w, r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, string(coordinator.ReasonMalformed), "invalid JSON: "+err.Error())
		return
	}

	runID, err := s.engine.Submit(r.Context(), doc.ToSubmission())
	if err != nil {
		var rejected *coordinator.RejectedError
		if errors.As(err, &rejected) {
			if rejected.Reason == coordinator.ReasonQueueFull {
				w.Header().Set("Retry-After", "1")
			}
			writeError(w, rejectionStatus(rejected.Reason), string(rejected.Reason), rejected.Detail)
			return
		}
		s.log.Error().Err(err).Msg("submit failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	w.Header().Set("Location", "/api/runs/"+runID)
	writeJSON(w, http.StatusAccepted, submitResponse{RunID: runID, State: string(execution.StateQueued)})
}

func rejectionStatus(reason coordinator.RejectReason) int {
	switch reason {
	case coordinator.ReasonMalformed:
		return http.StatusBadRequest
	case coordinator.ReasonUnknownEnvironment, coordinator.ReasonEnvironmentUnavailable, coordinator.ReasonLimitsExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusNotImplemented, "not_supported", "run history requires a store")
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "malformed", "owner is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	runs, err := s.runs.ListRunsByOwner(r.Context(), owner, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	out := make([]wire.Run, 0, len(runs))
	for _, run := range runs {
		out = append(out, runDocument(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runDocument(run))
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.FromResult(result.Redacted()))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	outcome, err := s.engine.Cancel(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{RunID: id, Outcome: string(outcome)})
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, coordinator.ErrNotTerminal):
		writeError(w, http.StatusConflict, "not_terminal", err.Error())
	default:
		s.log.Error().Err(err).Msg("run lookup failed")
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

// runDocument renders a run for clients with hidden test data removed.
func runDocument(run execution.Run) wire.Run {
	run.Result = run.Result.Redacted()
	doc := wire.FromRun(run)
	for i := range doc.Submission.Tests {
		if doc.Submission.Tests[i].Hidden {
			doc.Submission.Tests[i].Input = ""
			doc.Submission.Tests[i].ExpectedOutput = ""
		}
	}
	return doc
}
