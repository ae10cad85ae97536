package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAuth_DisabledWithoutSecret(t *testing.T) {
	h := testServer(t, "")

	rr := h.do(t, http.MethodGet, "/api/v1/hardware/status", "", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", rr.Code)
	}
}

func TestAuth_BearerToken(t *testing.T) {
	h := testServer(t, testSecret)

	valid, err := IssueToken(testSecret, "hydrocore", "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	otherSecret, err := IssueToken("another-secret-key-at-least-32-characters", "hydrocore", "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	wrongIssuer, err := IssueToken(testSecret, "someone-else", "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	expired, err := IssueToken(testSecret, "hydrocore", "dashboard", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	noSubject, err := IssueToken(testSecret, "hydrocore", "", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "not.a.token", http.StatusUnauthorized},
		{"wrong secret", otherSecret, http.StatusUnauthorized},
		{"wrong issuer", wrongIssuer, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"no subject", noSubject, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, http.MethodGet, "/api/v1/hardware/status", "", tt.token)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestAuth_RejectsOtherSigningMethods(t *testing.T) {
	h := testServer(t, testSecret)

	claims := jwt.RegisteredClaims{
		Issuer:    "hydrocore",
		Subject:   "dashboard",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	rr := h.do(t, http.MethodGet, "/api/v1/hardware/status", "", signed)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for HS512 token", rr.Code)
	}
}

func TestAuth_OpenRoutes(t *testing.T) {
	h := testServer(t, testSecret)

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		rr := h.do(t, http.MethodGet, path, "", "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without token", path, rr.Code)
		}
	}
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	if _, err := IssueToken("", "hydrocore", "dashboard", time.Minute); err == nil {
		t.Error("IssueToken() with empty secret should fail")
	}
}

// ─── WebSocket Tickets ──────────────────────────────────────────────────────

func TestWebSocket_TicketAuth(t *testing.T) {
	h := testServer(t, testSecret)
	ts := httptest.NewServer(h.srv.buildRouter())
	defer ts.Close()

	_, resp, err := dialWS(t, ts, "")
	if err == nil {
		t.Fatal("Dial() without ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}

	token, err := IssueToken(testSecret, "hydrocore", "dashboard", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	rr := h.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", token)
	if rr.Code != http.StatusOK {
		t.Fatalf("ws-ticket status = %d", rr.Code)
	}
	var body struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, rr, &body)
	if body.Ticket == "" || body.ExpiresIn != 60 {
		t.Fatalf("ticket response = %+v", body)
	}

	conn, _, err := dialWS(t, ts, "ticket="+body.Ticket)
	if err != nil {
		t.Fatalf("Dial() with ticket error = %v", err)
	}
	conn.Close()

	// Tickets are single-use.
	_, resp, err = dialWS(t, ts, "ticket="+body.Ticket)
	if err == nil {
		t.Fatal("Dial() with a spent ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestTicketStore_Expiry(t *testing.T) {
	store := newTicketStore()
	ticket := store.issue()

	store.mu.Lock()
	store.tickets[ticket] = time.Now().Add(-time.Second)
	store.mu.Unlock()

	store.clean()
	if store.consume(ticket) {
		t.Error("expired ticket accepted")
	}
}
