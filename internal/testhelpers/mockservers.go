package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockTokenServer is an OAuth2 token endpoint issuing client credentials
// tokens. The path may carry a tenant: "/{tenant}/oauth2/v2.0/token".
type MockTokenServer struct {
	Server       *httptest.Server
	ClientSecret string // Secret the client must present
	StatusCode   int    // HTTP status code to return (200 if not set)
	ExpiresIn    int    // Lifetime in seconds reported for issued tokens

	mu       sync.Mutex
	requests []TokenRequest
}

// TokenRequest records a single request received by MockTokenServer.
type TokenRequest struct {
	Tenant string
	Scope  string
	Claims string
}

// SetupMockTokenServer creates a mock OAuth2 token endpoint. Issued tokens
// are numbered in order: "issued-1", "issued-2", and so on. The server is
// closed when the test completes.
func SetupMockTokenServer(t *testing.T) *MockTokenServer {
	t.Helper()

	mock := &MockTokenServer{
		ClientSecret: "secret",
		StatusCode:   http.StatusOK,
		ExpiresIn:    3600,
	}

	router := http.NewServeMux()

	handler := func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.requests = append(mock.requests, TokenRequest{
			Tenant: r.PathValue("tenant"),
			Scope:  r.PostForm.Get("scope"),
			Claims: r.PostForm.Get("claims"),
		})
		n := len(mock.requests)
		mock.mu.Unlock()

		_, secret, basic := r.BasicAuth()
		if !(basic && secret == mock.ClientSecret) && r.PostForm.Get("client_secret") != mock.ClientSecret {
			w.WriteHeader(http.StatusUnauthorized)
			WriteJSON(w, map[string]string{"error": "invalid_client"})
			return
		}

		if mock.StatusCode != http.StatusOK {
			w.WriteHeader(mock.StatusCode)
			return
		}

		WriteJSON(w, map[string]any{
			"access_token": "issued-" + strconv.Itoa(n),
			"token_type":   "Bearer",
			"expires_in":   mock.ExpiresIn,
		})
	}

	router.HandleFunc("POST /{tenant}/oauth2/v2.0/token", handler)
	router.HandleFunc("POST /oauth2/token", handler)

	mock.Server = httptest.NewServer(router)
	t.Cleanup(mock.Server.Close)

	return mock
}

// TokenURL returns the tenant-templated token endpoint of the server.
func (m *MockTokenServer) TokenURL() string {
	return m.Server.URL + "/{tenant}/oauth2/v2.0/token"
}

// Requests returns a copy of the requests received so far.
func (m *MockTokenServer) Requests() []TokenRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]TokenRequest(nil), m.requests...)
}

// WriteJSON is a helper function that writes a JSON response.
// It sets the Content-Type header and marshals the payload to JSON.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
