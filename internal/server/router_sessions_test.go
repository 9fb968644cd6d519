package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestSessionLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	if sessionID == "" || created.HostID == "" || created.HostToken == "" {
		t.Fatalf("unexpected create response: %#v", created)
	}

	luis := server.joinSession(t, sessionID, "Luis")
	marta := server.joinSession(t, sessionID, "Marta")

	for _, diner := range []joinedDiner{luis, marta} {
		recorder := server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/items", diner.DinerToken, map[string]any{
			"description": "Bandeja paisa",
			"unitPrice":   20000,
			"quantity":    1,
		})
		expectStatus(t, recorder, http.StatusCreated)
	}

	var itemResponse struct {
		Total json.Number `json:"total"`
	}
	recorder := server.do(t, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	decodeResponse(t, recorder, &itemResponse)
	if itemResponse.Total.String() != "44000" {
		t.Fatalf("expected total 44000, got %s", itemResponse.Total)
	}

	recorder = server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/payments", luis.DinerToken, map[string]any{
		"payerName": "Luis",
		"amount":    22000,
	})
	expectStatus(t, recorder, http.StatusCreated)
	var paymentResponse struct {
		Payment struct {
			DinerID string      `json:"dinerId"`
			Amount  json.Number `json:"amount"`
		} `json:"payment"`
		TotalCollected json.Number `json:"totalCollected"`
	}
	decodeResponse(t, recorder, &paymentResponse)
	if paymentResponse.Payment.DinerID != luis.Diner.ID || paymentResponse.TotalCollected.String() != "22000" {
		t.Fatalf("unexpected payment response: %s", recorder.Body.String())
	}

	recorder = server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/payments", luis.DinerToken, map[string]any{
		"payerName": "Luis",
		"amount":    22000,
	})
	expectStatus(t, recorder, http.StatusConflict)
	var conflict errorBody
	decodeResponse(t, recorder, &conflict)
	if conflict.Error != "duplicate_payment" || conflict.Code != "billing.record_payment.duplicate_payment" {
		t.Fatalf("unexpected conflict body: %#v", conflict)
	}

	recorder = server.do(t, http.MethodGet, "/api/sessions/"+sessionID+"/summary", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var summary struct {
		Total        json.Number `json:"total"`
		Collected    json.Number `json:"collected"`
		Outstanding  json.Number `json:"outstanding"`
		PaidDiners   int         `json:"paidDiners"`
		ActiveDiners int         `json:"activeDiners"`
	}
	decodeResponse(t, recorder, &summary)
	if summary.Outstanding.String() != "22000" || summary.PaidDiners != 1 || summary.ActiveDiners != 2 {
		t.Fatalf("unexpected summary: %s", recorder.Body.String())
	}
}

func TestMoneyIsDecodedExactly(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	luis := server.joinSession(t, sessionID, "Luis")

	request := `{"description":"Cafe","unitPrice":0.1,"quantity":3}`
	recorder := server.doRaw(t, http.MethodPost, "/api/sessions/"+sessionID+"/items", luis.DinerToken, request)
	expectStatus(t, recorder, http.StatusCreated)
	var response struct {
		Item struct {
			Amount json.Number `json:"amount"`
		} `json:"item"`
		Total json.Number `json:"total"`
	}
	decodeResponse(t, recorder, &response)
	if response.Item.Amount.String() != "0.3" {
		t.Fatalf("expected exact amount 0.3, got %s", response.Item.Amount)
	}
	if response.Total.String() != "0.33" {
		t.Fatalf("expected total 0.33, got %s", response.Total)
	}
}

func TestImpreciseMoneyIsRejected(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	luis := server.joinSession(t, sessionID, "Luis")

	recorder := server.doRaw(t, http.MethodPost, "/api/sessions/"+sessionID+"/items", luis.DinerToken,
		`{"description":"Arepa","unitPrice":20000,"quantity":1}`)
	expectStatus(t, recorder, http.StatusCreated)

	requests := []struct {
		path  string
		token string
		body  string
	}{
		{path: "/items", token: luis.DinerToken, body: `{"description":"Dust","unitPrice":1e-20000000,"quantity":20000}`},
		{path: "/items", token: luis.DinerToken, body: `{"description":"Gold","unitPrice":1e13,"quantity":1}`},
		{path: "/payments", token: luis.DinerToken, body: `{"payerName":"Luis","amount":0.001}`},
		{path: "/tip-percent", token: created.HostToken, body: `{"tipPercent":10.555}`},
	}
	for _, request := range requests {
		recorder := server.doRaw(t, http.MethodPost, "/api/sessions/"+sessionID+request.path, request.token, request.body)
		expectStatus(t, recorder, http.StatusBadRequest)
		var body errorBody
		decodeResponse(t, recorder, &body)
		if body.Error != "invalid_request" {
			t.Fatalf("expected invalid_request for %s, got %#v", request.body, body)
		}
	}

	recorder = server.do(t, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
	expectStatus(t, recorder, http.StatusOK)
	var view struct {
		Total json.Number `json:"total"`
	}
	decodeResponse(t, recorder, &view)
	if view.Total.String() != "22000" {
		t.Fatalf("expected total 22000, got %s", view.Total)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	luis := server.joinSession(t, sessionID, "Luis")
	marta := server.joinSession(t, sessionID, "Marta")
	other := server.createSession(t)

	testCases := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
		reason string
	}{
		{
			name:   "unknown session",
			method: http.MethodGet,
			path:   "/api/sessions/missing",
			status: http.StatusNotFound,
			reason: "session_not_found",
		},
		{
			name:   "missing token",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/items",
			body:   map[string]any{"description": "Soda", "unitPrice": 3000, "quantity": 1},
			status: http.StatusUnauthorized,
			reason: "unauthorized",
		},
		{
			name:   "token for another session",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/tip-percent",
			token:  other.HostToken,
			body:   map[string]any{"tipPercent": 15},
			status: http.StatusForbidden,
			reason: "wrong_session",
		},
		{
			name:   "diner acting as host",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/tip-percent",
			token:  luis.DinerToken,
			body:   map[string]any{"tipPercent": 15},
			status: http.StatusForbidden,
			reason: "host_only",
		},
		{
			name:   "diner logging for someone else",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/items",
			token:  luis.DinerToken,
			body:   map[string]any{"description": "Soda", "unitPrice": 3000, "quantity": 1, "dinerId": marta.Diner.ID},
			status: http.StatusForbidden,
			reason: "acting_for_other",
		},
		{
			name:   "invalid price",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/items",
			token:  luis.DinerToken,
			body:   map[string]any{"description": "Soda", "unitPrice": 0, "quantity": 1},
			status: http.StatusBadRequest,
			reason: "invalid_unit_price",
		},
		{
			name:   "malformed amount",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/payments",
			token:  luis.DinerToken,
			body:   map[string]any{"payerName": "Luis", "amount": "lots"},
			status: http.StatusBadRequest,
			reason: "invalid_request",
		},
		{
			name:   "tip out of range",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/tip-percent",
			token:  created.HostToken,
			body:   map[string]any{"tipPercent": 120},
			status: http.StatusBadRequest,
			reason: "invalid_tip_percent",
		},
		{
			name:   "unknown item",
			method: http.MethodDelete,
			path:   "/api/sessions/" + sessionID + "/items/unknown-item",
			token:  luis.DinerToken,
			status: http.StatusNotFound,
			reason: "line_item_not_found",
		},
		{
			name:   "self merge",
			method: http.MethodPost,
			path:   "/api/sessions/" + sessionID + "/merge",
			token:  created.HostToken,
			body:   map[string]any{"fromDinerId": luis.Diner.ID, "toDinerId": luis.Diner.ID},
			status: http.StatusBadRequest,
			reason: "self_merge",
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(t, testCase.method, testCase.path, testCase.token, testCase.body)
			expectStatus(t, recorder, testCase.status)
			var body errorBody
			decodeResponse(t, recorder, &body)
			if body.Error != testCase.reason {
				t.Fatalf("expected reason %q, got %q", testCase.reason, body.Error)
			}
		})
	}
}

func TestHostSettlementOverHTTP(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	host := created.HostToken
	var diners []joinedDiner
	for _, name := range []string{"Luis", "Marta", "Pedro", "Sara"} {
		diners = append(diners, server.joinSession(t, sessionID, name))
	}
	for _, diner := range diners {
		recorder := server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/items", diner.DinerToken, map[string]any{
			"description": "Menu",
			"unitPrice":   25000,
			"quantity":    1,
		})
		expectStatus(t, recorder, http.StatusCreated)
	}

	recorder := server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/bill-total", host, map[string]any{
		"billTotal":            121000,
		"distributeDifference": true,
	})
	expectStatus(t, recorder, http.StatusOK)
	var closed struct {
		Total            json.Number `json:"total"`
		DistributedItems []struct {
			UnitPrice json.Number `json:"unitPrice"`
		} `json:"distributedItems"`
	}
	decodeResponse(t, recorder, &closed)
	if len(closed.DistributedItems) != 4 || closed.DistributedItems[0].UnitPrice.String() != "2500" {
		t.Fatalf("unexpected distribution: %s", recorder.Body.String())
	}
	if closed.Total.String() != "121000" {
		t.Fatalf("expected total 121000, got %s", closed.Total)
	}

	recorder = server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/bill-total", host, map[string]any{"billTotal": 130000})
	expectStatus(t, recorder, http.StatusConflict)

	recorder = server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/bank-key", host, map[string]any{"bankKey": " @ana "})
	expectStatus(t, recorder, http.StatusOK)
	recorder = server.do(t, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
	if !strings.Contains(recorder.Body.String(), `"bankKey":"@ana"`) {
		t.Fatalf("expected bank key in session: %s", recorder.Body.String())
	}
	recorder = server.do(t, http.MethodDelete, "/api/sessions/"+sessionID+"/bank-key", host, nil)
	expectStatus(t, recorder, http.StatusOK)
	recorder = server.do(t, http.MethodGet, "/api/sessions/"+sessionID, "", nil)
	if strings.Contains(recorder.Body.String(), `"bankKey"`) {
		t.Fatalf("expected bank key to be cleared: %s", recorder.Body.String())
	}
}

func TestSharedItemsAndGroupRemovalOverHTTP(t *testing.T) {
	server := newTestServer(t)
	created := server.createSession(t)
	sessionID := created.Session.ID
	luis := server.joinSession(t, sessionID, "Luis")
	marta := server.joinSession(t, sessionID, "Marta")

	recorder := server.do(t, http.MethodPost, "/api/sessions/"+sessionID+"/shared-items", created.HostToken, map[string]any{
		"description": "Wine",
		"unitPrice":   100,
		"quantity":    1,
		"dinerIds":    []string{luis.Diner.ID, marta.Diner.ID, luis.Diner.ID},
	})
	expectStatus(t, recorder, http.StatusCreated)
	var shared struct {
		Items []struct {
			UnitPrice           json.Number `json:"unitPrice"`
			DistributionGroupID string      `json:"distributionGroupId"`
			AddedByHost         bool        `json:"addedByHost"`
		} `json:"items"`
	}
	decodeResponse(t, recorder, &shared)
	if len(shared.Items) != 2 || shared.Items[0].UnitPrice.String() != "50" || !shared.Items[0].AddedByHost {
		t.Fatalf("unexpected shared items: %s", recorder.Body.String())
	}

	recorder = server.do(t, http.MethodDelete, "/api/sessions/"+sessionID+"/groups/"+shared.Items[0].DistributionGroupID, created.HostToken, nil)
	expectStatus(t, recorder, http.StatusOK)
	var removed struct {
		Removed int         `json:"removed"`
		Total   json.Number `json:"total"`
	}
	decodeResponse(t, recorder, &removed)
	if removed.Removed != 2 || removed.Total.String() != "0" {
		t.Fatalf("unexpected removal response: %s", recorder.Body.String())
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	server := newTestServer(t)
	server.createSession(t)

	recorder := server.do(t, http.MethodGet, "/healthz", "", nil)
	expectStatus(t, recorder, http.StatusOK)

	recorder = server.do(t, http.MethodGet, "/metrics", "", nil)
	expectStatus(t, recorder, http.StatusOK)
	body := recorder.Body.String()
	if !strings.Contains(body, "mivaca_sessions_created_total 1") {
		t.Fatalf("expected session counter in metrics output")
	}
	if !strings.Contains(body, `route="/api/sessions"`) {
		t.Fatalf("expected request histogram labelled by route")
	}
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
