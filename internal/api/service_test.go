package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sentinel/mpc-engine/internal/api"
	"github.com/sentinel/mpc-engine/internal/capability"
	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/dispatcher"
	"github.com/sentinel/mpc-engine/internal/events"
	"github.com/sentinel/mpc-engine/internal/model"
	"github.com/sentinel/mpc-engine/internal/orchestrator"
	"github.com/sentinel/mpc-engine/internal/store"
)

// captureCluster records queued jobs; tests post the callbacks themselves.
type captureCluster struct {
	mu   sync.Mutex
	jobs map[model.JobKey]model.QueuedJob
}

func (c *captureCluster) Queue(_ context.Context, job model.QueuedJob) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs[job.Job.Key] = job
	return nil
}

func (c *captureCluster) queued(key model.JobKey) model.QueuedJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs[key]
}

type testEnv struct {
	store   *store.MemoryStore
	sink    *events.MemorySink
	cluster *captureCluster
	router  chi.Router
}

// newTestEnv creates an API over an in-memory store and a capturing cluster.
func newTestEnv(t *testing.T, limit rate.Limit, burst int) *testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	sink := events.NewMemorySink()
	iss := capability.NewIssuer([]byte("api-test-callback-secret-32bytes"), time.Minute)
	cl := &captureCluster{jobs: make(map[model.JobKey]model.QueuedJob)}
	key := model.ID{0xAB}

	svc := api.NewService(orchestrator.New(ms, cl, iss), dispatcher.New(ms, iss, sink), ms, iss, &key)
	r := chi.NewRouter()
	svc.Routes(r, rate.NewLimiter(limit, burst), nil)

	return &testEnv{store: ms, sink: sink, cluster: cl, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) submit(t *testing.T, id model.CircuitID, corr uint64, args string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/circuits/"+string(id)+"/computations",
		fmt.Sprintf(`{"correlation_id":%d,"args":%s}`, corr, args))
}

func errorKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Kind
}

var certID = model.ID{0xCE}

func certArgs() string { return fmt.Sprintf(`{"certificate_id":"%s"}`, certID) }

// --- Submission ---

func TestSubmit_Accepted(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.submit(t, circuit.CircuitInitEmissionsCertificate, 7, certArgs())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var handle model.JobHandle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &handle))
	assert.Equal(t, model.JobQueued, handle.State)
	assert.Equal(t, uint64(7), handle.Key.CorrelationID)
	assert.NotEmpty(t, handle.JobID)

	qj := env.cluster.queued(handle.Key)
	assert.NotEmpty(t, qj.Token)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		circuit model.CircuitID
		body    string
		status  int
		kind    string
	}{
		{"unknown circuit", "add_together", `{"correlation_id":1}`, http.StatusNotFound, "UnknownCircuit"},
		{"unknown field", circuit.CircuitInitEmissionsCertificate, `{"correlation_id":1,"nonce":3}`, http.StatusBadRequest, "InvalidArguments"},
		{"unknown arg field", circuit.CircuitInitEmissionsCertificate, fmt.Sprintf(`{"correlation_id":1,"args":{"certificate_id":"%s","x":1}}`, certID), http.StatusBadRequest, "InvalidArguments"},
		{"zero id", circuit.CircuitInitEmissionsCertificate, `{"correlation_id":1,"args":{}}`, http.StatusBadRequest, "InvalidArguments"},
		{"missing input", circuit.CircuitUpdateEmissions, fmt.Sprintf(`{"correlation_id":1,"args":%s}`, certArgs()), http.StatusBadRequest, "InvalidArguments"},
		{"missing record", circuit.CircuitProveThreshold, fmt.Sprintf(`{"correlation_id":1,"args":{"certificate_id":"%s","threshold":5}}`, certID), http.StatusNotFound, "RecordNotFound"},
		{"not json", circuit.CircuitInitEmissionsCertificate, `{`, http.StatusBadRequest, "InvalidArguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, rate.Inf, 1)
			w := env.do(t, http.MethodPost, "/api/v1/circuits/"+string(tt.circuit)+"/computations", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.kind, errorKind(t, w))
		})
	}
}

func TestSubmit_DuplicateCorrelationID(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	require.Equal(t, http.StatusAccepted, env.submit(t, circuit.CircuitInitEmissionsCertificate, 1, certArgs()).Code)
	w := env.submit(t, circuit.CircuitInitEmissionsCertificate, 1, certArgs())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateComputation", errorKind(t, w))
}

func TestSubmit_RateLimited(t *testing.T) {
	env := newTestEnv(t, rate.Every(time.Hour), 1)

	require.Equal(t, http.StatusAccepted, env.submit(t, circuit.CircuitInitEmissionsCertificate, 1, certArgs()).Code)
	w := env.submit(t, circuit.CircuitInitEmissionsCertificate, 2, certArgs())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/circuits", nil).Code)
}

// --- Callbacks ---

func callbackPath(key model.JobKey) string {
	return fmt.Sprintf("/api/v1/callbacks/%s/%d", key.Circuit, key.CorrelationID)
}

func TestCallback_SuccessStoresRecord(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)
	key := model.JobKey{Circuit: circuit.CircuitInitEmissionsCertificate, CorrelationID: 3}
	require.Equal(t, http.StatusAccepted, env.submit(t, key.Circuit, key.CorrelationID, certArgs()).Code)
	qj := env.cluster.queued(key)

	out := model.SealedRecordOutput(model.RecordRef{Kind: model.KindEmissions, ID: certID}, []byte("sealed"))
	w := env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{Token: qj.Token, Success: &out})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var ev struct {
		Kind          model.EventKind `json:"kind"`
		CorrelationID uint64          `json:"correlation_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ev))
	assert.Equal(t, model.EventEmissionsCertificateInitialized, ev.Kind)
	assert.Equal(t, uint64(3), ev.CorrelationID)
	assert.Len(t, env.sink.Events(), 1)

	// The record is now readable by ref.
	w = env.do(t, http.MethodGet, "/api/v1/records/emissions/"+certID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec model.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, []byte("sealed"), rec.Ciphertext)
	assert.Equal(t, uint64(1), rec.Version)

	// A replay is a conflict and publishes nothing.
	w = env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{Token: qj.Token, Success: &out})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DuplicateCallback", errorKind(t, w))
	assert.Len(t, env.sink.Events(), 1)
}

func TestCallback_Rejections(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)
	key := model.JobKey{Circuit: circuit.CircuitInitEmissionsCertificate, CorrelationID: 4}
	require.Equal(t, http.StatusAccepted, env.submit(t, key.Circuit, key.CorrelationID, certArgs()).Code)
	qj := env.cluster.queued(key)
	out := model.SealedRecordOutput(model.RecordRef{Kind: model.KindEmissions, ID: certID}, []byte("sealed"))

	w := env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{Token: "garbage", Success: &out})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{Token: qj.Token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MalformedOutput", errorKind(t, w))

	wrong := model.RevealedBoolOutput(true)
	w = env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{Token: qj.Token, Success: &wrong})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/callbacks/init_emissions_certificate/99", api.CallbackRequest{Token: qj.Token, Success: &out})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/callbacks/init_emissions_certificate/-1", api.CallbackRequest{Token: qj.Token, Success: &out})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	job, err := env.store.GetJob(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, model.JobQueued, job.State)
	assert.Empty(t, env.sink.Events())
}

func TestCallback_Aborted(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)
	key := model.JobKey{Circuit: circuit.CircuitInitEmissionsCertificate, CorrelationID: 5}
	require.Equal(t, http.StatusAccepted, env.submit(t, key.Circuit, key.CorrelationID, certArgs()).Code)
	qj := env.cluster.queued(key)

	w := env.do(t, http.MethodPost, callbackPath(key), api.CallbackRequest{
		Token:   qj.Token,
		Aborted: &api.AbortedBody{Reason: "order expired", Kind: "OrderExpired"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "OrderExpired", errorKind(t, w))

	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/%d", key.Circuit, key.CorrelationID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var job struct {
		State  model.JobState `json:"state"`
		Reason string         `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, model.JobAborted, job.State)
	assert.Equal(t, "order expired", job.Reason)
	assert.Empty(t, env.sink.Events())
}

// --- Jobs ---

func TestAcceptJob(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)
	key := model.JobKey{Circuit: circuit.CircuitInitEmissionsCertificate, CorrelationID: 6}
	require.Equal(t, http.StatusAccepted, env.submit(t, key.Circuit, key.CorrelationID, certArgs()).Code)
	qj := env.cluster.queued(key)
	path := fmt.Sprintf("/api/v1/jobs/%s/%d/accept", key.Circuit, key.CorrelationID)

	w := env.do(t, http.MethodPost, path, api.AcceptRequest{Token: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, path, api.AcceptRequest{Token: qj.Token})
	assert.Equal(t, http.StatusNoContent, w.Code)

	job, err := env.store.GetJob(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, model.JobExecuting, job.State)
}

func TestListJobs(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.do(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	require.Equal(t, http.StatusAccepted, env.submit(t, circuit.CircuitInitEmissionsCertificate, 1, certArgs()).Code)
	require.Equal(t, http.StatusAccepted, env.submit(t, circuit.CircuitInitSEMAReport, 2, fmt.Sprintf(`{"report_id":"%s"}`, model.ID{0x5E})).Code)

	var jobs []struct {
		Key model.JobKey `json:"key"`
	}
	w = env.do(t, http.MethodGet, "/api/v1/jobs?state=queued", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	assert.Len(t, jobs, 2)

	w = env.do(t, http.MethodGet, "/api/v1/jobs?state=completed", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &jobs))
	assert.Empty(t, jobs)

	w = env.do(t, http.MethodGet, "/api/v1/jobs?state=lost", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJob_NotFound(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.do(t, http.MethodGet, "/api/v1/jobs/prove_threshold/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "JobNotFound", errorKind(t, w))

	w = env.do(t, http.MethodGet, "/api/v1/jobs/add_together/42", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "UnknownCircuit", errorKind(t, w))
}

// --- Reads ---

func TestGetRecord_BadRef(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/records/ledger/"+certID.String(), nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/records/emissions/zz", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/records/emissions/"+certID.String(), nil).Code)
}

func TestListCircuits(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.do(t, http.MethodGet, "/api/v1/circuits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var defs []circuit.Definition
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &defs))
	assert.Len(t, defs, len(circuit.Definitions()))
	assert.True(t, strings.Contains(w.Body.String(), `"update_emissions"`))
}

func TestClusterKey(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.do(t, http.MethodGet, "/api/v1/cluster/key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string][]byte
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	want := model.ID{0xAB}
	assert.Equal(t, want[:], resp["public_key"])
}

func TestClusterKey_RemoteCluster(t *testing.T) {
	ms := store.NewMemoryStore()
	iss := capability.NewIssuer([]byte("api-test-callback-secret-32bytes"), time.Minute)
	svc := api.NewService(orchestrator.New(ms, nil, iss), dispatcher.New(ms, iss, events.NewMemorySink()), ms, iss, nil)
	r := chi.NewRouter()
	svc.Routes(r, rate.NewLimiter(rate.Inf, 1), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cluster/key", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Without a cluster, submission is refused.
	body := strings.NewReader(fmt.Sprintf(`{"correlation_id":1,"args":%s}`, certArgs()))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/circuits/init_emissions_certificate/computations", body)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "ClusterNotSet", errorKind(t, w))
}

func TestRiskTiers(t *testing.T) {
	env := newTestEnv(t, rate.Inf, 1)

	w := env.do(t, http.MethodGet, "/api/v1/risk/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var table api.RiskTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	require.Len(t, table.Tiers, len(circuit.RiskTierFloorsBps)+1)
	assert.Equal(t, "1.5", table.Tiers[0].MinHealth.String())
	assert.Equal(t, uint64(11000), table.Tiers[2].MinHealthBps)
	assert.True(t, table.Tiers[len(table.Tiers)-1].MinHealth.IsZero())
	assert.Equal(t, "1.1", table.AtRiskHealth.String())
	assert.Equal(t, "0.005", table.DefaultSlippage.String())
}
