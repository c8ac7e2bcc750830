// Package api provides the HTTP handlers for submitting computations,
// receiving cluster callbacks and reading jobs and ciphertext records.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/dispatcher"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/orchestrator"
	"github.com/sentinel/mpc-engine/internal/store"
)

const maxBodyBytes = 1 << 20

// Service handles the engine's HTTP surface. It holds no state of its own.
type Service struct {
	orch       *orchestrator.Orchestrator
	disp       *dispatcher.Dispatcher
	store      store.Store
	issuer     *capability.Issuer
	clusterKey *model.ID // set only for the local cluster
}

// NewService creates the API service. Pass a nil clusterKey when jobs run on
// a remote cluster.
func NewService(o *orchestrator.Orchestrator, d *dispatcher.Dispatcher, st store.Store, iss *capability.Issuer, clusterKey *model.ID) *Service {
	return &Service{orch: o, disp: d, store: st, issuer: iss, clusterKey: clusterKey}
}

// --- Request/Response types ---

// SubmitRequest is the JSON body of POST /circuits/{circuit}/computations.
// Args are decoded against the circuit's argument type; unknown fields are
// rejected.
type SubmitRequest struct {
	CorrelationID uint64          `json:"correlation_id"`
	Args          json.RawMessage `json:"args"`
	// Inputs are base64 ciphertexts sealed to the cluster key.
	Inputs [][]byte `json:"inputs,omitempty"`
}

// CallbackRequest is the JSON body of POST /callbacks/{circuit}/{correlationID}.
// Exactly one of Success and Aborted must be set.
type CallbackRequest struct {
	Token   string        `json:"token"`
	Success *model.Output `json:"success,omitempty"`
	Aborted *AbortedBody  `json:"aborted,omitempty"`
}

type AbortedBody struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind,omitempty"`
}

// AcceptRequest is the JSON body of POST /jobs/{circuit}/{correlationID}/accept.
type AcceptRequest struct {
	Token string `json:"token"`
}

// --- HTTP Handlers ---

// ListCircuits handles GET /api/v1/circuits
func (s *Service) ListCircuits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, circuit.Definitions())
}

// ClusterKey handles GET /api/v1/cluster/key. Clients seal inline inputs to
// this key.
func (s *Service) ClusterKey(w http.ResponseWriter, r *http.Request) {
	if s.clusterKey == nil {
		writeError(w, model.ErrClusterNotSet)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]byte{"public_key": s.clusterKey[:]})
}

// Submit handles POST /api/v1/circuits/{circuit}/computations
func (s *Service) Submit(w http.ResponseWriter, r *http.Request) {
	id := model.CircuitID(chi.URLParam(r, "circuit"))

	var req SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Args) == 0 {
		req.Args = json.RawMessage("{}")
	}
	args, err := circuit.DecodeArgs(id, req.Args)
	if err != nil {
		writeError(w, err)
		return
	}

	handle, err := s.orch.Submit(r.Context(), orchestrator.Request{
		CorrelationID: req.CorrelationID,
		Args:          args,
		Inputs:        req.Inputs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, handle)
}

// ListJobs handles GET /api/v1/jobs?state=
func (s *Service) ListJobs(w http.ResponseWriter, r *http.Request) {
	state := model.JobState(r.URL.Query().Get("state"))
	switch state {
	case "", model.JobQueued, model.JobExecuting, model.JobCompleted, model.JobAborted:
	default:
		writeError(w, fmt.Errorf("%w: unknown state %q", model.ErrInvalidArguments, state))
		return
	}

	jobs, err := s.orch.Jobs(r.Context(), state)
	if err != nil {
		writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetJob handles GET /api/v1/jobs/{circuit}/{correlationID}
func (s *Service) GetJob(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	job, err := s.orch.Job(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// AcceptJob handles POST /api/v1/jobs/{circuit}/{correlationID}/accept. A
// remote cluster calls it when it starts executing a job.
func (s *Service) AcceptJob(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req AcceptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	job, err := s.orch.Job(ctx, key)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.issuer.Verify(req.Token, job); err != nil {
		writeError(w, err)
		return
	}
	if err := s.orch.Accept(ctx, key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Callback handles POST /api/v1/callbacks/{circuit}/{correlationID}
func (s *Service) Callback(w http.ResponseWriter, r *http.Request) {
	key, err := jobKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req CallbackRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	cb := model.Callback{Key: key, Token: req.Token}
	switch {
	case req.Success != nil && req.Aborted == nil:
		cb.Outcome = model.Success{Output: *req.Success}
	case req.Aborted != nil && req.Success == nil:
		cb.Outcome = model.Aborted{Reason: req.Aborted.Reason, Kind: req.Aborted.Kind}
	default:
		writeError(w, fmt.Errorf("%w: exactly one of success and aborted is required", model.ErrMalformedOutput))
		return
	}

	ev, err := s.disp.Handle(r.Context(), cb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GetRecord handles GET /api/v1/records/{kind}/{id}. The ciphertext is
// returned as stored (base64 in JSON).
func (s *Service) GetRecord(w http.ResponseWriter, r *http.Request) {
	kind := model.RecordKind(chi.URLParam(r, "kind"))
	if !kind.Valid() {
		writeError(w, fmt.Errorf("%w: unknown record kind %q", model.ErrInvalidArguments, kind))
		return
	}
	id, err := model.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", model.ErrInvalidArguments, err))
		return
	}

	rec, err := s.store.GetRecord(r.Context(), model.RecordRef{Kind: kind, ID: id})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func jobKey(r *http.Request) (model.JobKey, error) {
	id := model.CircuitID(chi.URLParam(r, "circuit"))
	if _, err := circuit.Lookup(id); err != nil {
		return model.JobKey{}, err
	}
	corr, err := strconv.ParseUint(chi.URLParam(r, "correlationID"), 10, 64)
	if err != nil {
		return model.JobKey{}, fmt.Errorf("%w: correlation id must be an unsigned integer", model.ErrInvalidArguments)
	}
	return model.JobKey{Circuit: id, CorrelationID: corr}, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", model.ErrInvalidArguments, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
