package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mivaca/backend/internal/auth"
	"github.com/mivaca/backend/internal/billing"
	"github.com/mivaca/backend/internal/ledger"
	"github.com/mivaca/backend/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type testServer struct {
	handler    http.Handler
	issuer     *auth.TokenIssuer
	dispatcher *RealtimeDispatcher
	collector  *metrics.Collector
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to build collector: %v", err)
	}
	dispatcher := NewRealtimeDispatcher(RealtimeConfig{Dropped: collector.RealtimeDropped})
	service, err := billing.NewService(billing.ServiceConfig{
		Store:    ledger.NewStore(ledger.StoreConfig{}),
		Notifier: dispatcher,
		Metrics:  collector,
	})
	if err != nil {
		t.Fatalf("failed to build billing service: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "mivaca-api",
		Audience:      "mivaca-clients",
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Billing:           service,
		Tokens:            issuer,
		Realtime:          dispatcher,
		Metrics:           collector,
		Logger:            zap.NewNop(),
		HeartbeatInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, issuer: issuer, dispatcher: dispatcher, collector: collector}
}

func (s testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s testServer) doRaw(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, recorder.Code, recorder.Body.String())
	}
}

type createdSession struct {
	Session struct {
		ID string `json:"id"`
	} `json:"session"`
	HostID    string `json:"hostId"`
	HostToken string `json:"hostToken"`
}

type joinedDiner struct {
	Diner struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"diner"`
	DinerToken string `json:"dinerToken"`
}

func (s testServer) createSession(t *testing.T) createdSession {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/api/sessions", "", map[string]any{"name": "Friday dinner", "hostName": "Ana"})
	expectStatus(t, recorder, http.StatusCreated)
	var created createdSession
	decodeResponse(t, recorder, &created)
	return created
}

func (s testServer) joinSession(t *testing.T, sessionID, name string) joinedDiner {
	t.Helper()
	recorder := s.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/diners", "", map[string]any{"name": name})
	expectStatus(t, recorder, http.StatusCreated)
	var joined joinedDiner
	decodeResponse(t, recorder, &joined)
	return joined
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
