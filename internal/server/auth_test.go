package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func Test_Auth_MissingHeaderRejected(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	w := h.do(httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="docq"` {
		t.Errorf("WWW-Authenticate: got %q", got)
	}
}

func Test_Auth_GarbageTokenRejected(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)

	w := h.do(authed(http.MethodGet, "/api/documents", "not.a.jwt"))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Bearer realm="docq" error="invalid_token"` {
		t.Errorf("WWW-Authenticate: got %q", got)
	}
}

func Test_Auth_ValidTokenReachesHandler(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	_, token := h.seedUser(t, "eve@example.com")

	w := h.do(authed(http.MethodGet, "/api/documents", token))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func Test_Auth_ScopesRequestToTokenOwner(t *testing.T) {
	t.Parallel()
	h := newTestServer(t)
	userID, token := h.seedUser(t, "frank@example.com")

	w := h.do(authed(http.MethodGet, "/api/search?q=anything", token))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if h.retriever.lastOwner != userID {
		t.Errorf("retriever owner: got %q, want %q", h.retriever.lastOwner, userID)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"Bearer  padded ", "padded"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header %q: got %q, want %q", tc.header, got, tc.want)
		}
	}
}
