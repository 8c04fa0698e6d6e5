package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/stagegate/stagegate-server/internal/application"
	"github.com/stagegate/stagegate-server/internal/domain"
	"github.com/stagegate/stagegate-server/internal/infrastructure/httpapi"
	"github.com/stagegate/stagegate-server/internal/infrastructure/sqlite"
	"github.com/stagegate/stagegate-server/internal/infrastructure/syncworkflow"
)

type healthyEvaluator struct{}

func (healthyEvaluator) Snapshot(ctx context.Context, subject domain.SubjectID, targets []domain.Target) (domain.HealthSnapshot, error) {
	return domain.HealthSnapshot{SuccessRate: 1.0}, nil
}

func newTestServer(t *testing.T) (*gin.Engine, *application.RolloutService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := sqlite.OpenTestDB(t)
	rolloutRepo := &sqlite.RolloutRepo{DB: db}
	targetRepo := &sqlite.TargetRepo{DB: db}
	deployer := &sqlite.RecordingDeployer{DB: db}

	wf := &domain.RolloutWorkflow{
		Rollouts: rolloutRepo,
		Deployer: deployer,
		Health:   healthyEvaluator{},
	}
	engine := &syncworkflow.Engine{}
	runner, err := engine.RolloutRunner(wf)
	if err != nil {
		t.Fatalf("RolloutRunner: %v", err)
	}

	rolloutSvc := application.NewRolloutService(rolloutRepo, domain.NewSubjectLocks(), runner, nil)
	targetSvc := &application.TargetService{Targets: targetRepo}

	server := &httpapi.Server{Rollouts: rolloutSvc, Targets: targetSvc}
	return server.Router(), rolloutSvc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router, _ := newTestServer(t)
	w := doJSON(t, router, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: got %d, want %d", w.Code, http.StatusOK)
	}
}

func TestTargetEndpoints(t *testing.T) {
	router, _ := newTestServer(t)

	target := map[string]string{"id": "t1", "key": "cluster-1", "name": "Cluster 1", "environment": "staging"}
	if w := doJSON(t, router, http.MethodPost, "/api/targets", target); w.Code != http.StatusCreated {
		t.Fatalf("create target: got %d, body %s", w.Code, w.Body)
	}
	if w := doJSON(t, router, http.MethodPost, "/api/targets", target); w.Code != http.StatusConflict {
		t.Fatalf("duplicate target: got %d, want %d", w.Code, http.StatusConflict)
	}

	w := doJSON(t, router, http.MethodGet, "/api/targets/t1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get target: got %d", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode target: %v", err)
	}
	if got["key"] != "cluster-1" || got["environment"] != "staging" {
		t.Errorf("target = %v", got)
	}

	if w := doJSON(t, router, http.MethodGet, "/api/targets/unknown", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get unknown target: got %d, want %d", w.Code, http.StatusNotFound)
	}

	if w := doJSON(t, router, http.MethodDelete, "/api/targets/t1", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete target: got %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/api/targets", nil); w.Code != http.StatusOK {
		t.Fatalf("list targets: got %d", w.Code)
	} else {
		var list []map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("list after delete: got %d entries", len(list))
		}
	}
}

func TestStartRolloutAndStatus(t *testing.T) {
	router, rolloutSvc := newTestServer(t)

	req := map[string]any{
		"subject":          "payments-operator",
		"target_version":   "v2",
		"previous_version": "v1",
		"strategy": map[string]any{
			"type":   "direct",
			"direct": map[string]any{"skip_health_checks": true},
		},
		"targets": []map[string]string{
			{"id": "t1", "key": "cluster-1", "name": "a"},
			{"id": "t2", "key": "cluster-2", "name": "b"},
		},
	}

	w := doJSON(t, router, http.MethodPost, "/api/rollouts", req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("start rollout: got %d, body %s", w.Code, w.Body)
	}
	var started map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	id := started["id"]
	if id == "" {
		t.Fatal("start response missing id")
	}

	if err := rolloutSvc.Await(context.Background(), domain.RolloutID(id)); err != nil {
		t.Fatalf("Await: %v", err)
	}

	w = doJSON(t, router, http.MethodGet, "/api/rollouts/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get rollout: got %d", w.Code)
	}
	var status struct {
		Status         string            `json:"status"`
		TargetStatuses map[string]string `json:"target_statuses"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Status != string(domain.RolloutCompleted) {
		t.Errorf("status = %q, want %q", status.Status, domain.RolloutCompleted)
	}
	if status.TargetStatuses["t1"] != string(domain.TargetHealthy) {
		t.Errorf("t1 status = %q, want %q", status.TargetStatuses["t1"], domain.TargetHealthy)
	}
}

func TestStartRolloutValidation(t *testing.T) {
	router, _ := newTestServer(t)

	// Unknown strategy type.
	req := map[string]any{
		"subject":        "svc",
		"target_version": "v2",
		"strategy":       map[string]any{"type": "big-bang"},
		"targets":        []map[string]string{{"id": "t1", "key": "k", "name": "a"}},
	}
	if w := doJSON(t, router, http.MethodPost, "/api/rollouts", req); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid strategy: got %d, want %d", w.Code, http.StatusBadRequest)
	}

	// Malformed duration in the canary config.
	req["strategy"] = map[string]any{
		"type": "canary",
		"canary": map[string]any{
			"initial_percentage":   10,
			"increment_percentage": 30,
			"evaluation_window":    "soon",
		},
	}
	if w := doJSON(t, router, http.MethodPost, "/api/rollouts", req); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid duration: got %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestRollbackRequiresReason(t *testing.T) {
	router, _ := newTestServer(t)
	w := doJSON(t, router, http.MethodPost, "/api/rollouts/some-id/rollback", map[string]string{"reason": ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("rollback empty reason: got %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = doJSON(t, router, http.MethodPost, "/api/rollouts/unknown/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cancel unknown: got %d, want %d", w.Code, http.StatusNotFound)
	}
}
