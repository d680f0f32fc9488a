package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iff-guardian/hostguard/internal/broadcast"
	"github.com/iff-guardian/hostguard/internal/correlation"
	"github.com/iff-guardian/hostguard/internal/domain"
	"github.com/iff-guardian/hostguard/internal/eventstore"
	"github.com/iff-guardian/hostguard/internal/response"
	"github.com/iff-guardian/hostguard/internal/rules"
	"github.com/iff-guardian/hostguard/pkg/logger"
	"github.com/iff-guardian/hostguard/pkg/metrics"
)

func newTestService(t *testing.T) (*Service, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	log := logger.NewNoop()
	mc := metrics.NewCollector(t.Name())

	events := eventstore.NewMemoryStore()
	ruleStore := rules.NewMemoryStore()
	engine := correlation.New(events, correlation.NewMemoryBurstTracker(), nil, log, mc)

	registry := response.NewRegistry()
	response.RegisterBuiltins(registry)
	responder := response.New(response.Config{MaxPendingActionsPerConversation: 5}, response.NewMemoryStore(), registry, log, mc)

	b := broadcast.New(broadcast.Config{}, log, mc)

	svc := New(Config{WriteRequestsPerSecond: 1000}, events, ruleStore, engine, responder, b, log, mc)

	router := gin.New()
	v1 := router.Group("/api/v1")
	svc.RegisterRoutes(v1)
	return svc, router
}

func TestListEvents_EmptyStoreReturnsEmptyPage(t *testing.T) {
	_, router := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["total"])
}

func TestGetEvent_UnknownIDReturns404(t *testing.T) {
	_, router := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRuleLifecycle_CreateListDelete(t *testing.T) {
	_, router := newTestService(t)

	rule := domain.SecurityEventRule{
		Channel: "Security", EventID: 4625, EventType: domain.AuthenticationFailure,
		BaseRisk: domain.RiskMedium, BaseConfidence: 80, Priority: 1, Enabled: true,
	}
	body, _ := json.Marshal(rule)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed["rules"], 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/v1/rules/Security/4625", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSuggestAction_UnsupportedTypeReturns400(t *testing.T) {
	_, router := newTestService(t)

	body, _ := json.Marshal(suggestRequest{
		ConversationID: "c1", MessageID: "m1", ActionType: "not_a_real_action",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSuggestAction_ValidRequestIsPending(t *testing.T) {
	_, router := newTestService(t)

	body, _ := json.Marshal(suggestRequest{
		ConversationID: "c1", MessageID: "m1", ActionType: "BlockIP",
		ActionData: map[string]interface{}{"ip": "10.0.0.1"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/actions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var action domain.ActionExecution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &action))
	assert.Equal(t, domain.ActionPending, action.Status)
}

func TestCorrelationStats_ReturnsZeroedStatsInitially(t *testing.T) {
	_, router := newTestService(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/correlations/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.CorrelationStatistics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.TotalCorrelations)
}
