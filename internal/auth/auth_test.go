package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)

	tests := []struct {
		name       string
		method     string
		path       string
		header     string
		wantStatus int
	}{
		{"valid token", "GET", "/api/satellites", "Bearer s3cret", http.StatusOK},
		{"missing header", "GET", "/api/satellites", "", http.StatusUnauthorized},
		{"wrong token", "POST", "/api/predict/trajectory", "Bearer nope", http.StatusUnauthorized},
		{"not bearer", "GET", "/api/satellites", "Basic s3cret", http.StatusUnauthorized},
		{"empty bearer", "GET", "/api/satellites", "Bearer ", http.StatusUnauthorized},
		{"exempt status", "GET", "/api/status", "", http.StatusOK},
		{"exempt healthz", "GET", "/healthz", "", http.StatusOK},
		{"exempt metrics", "GET", "/metrics", "", http.StatusOK},
		{"preflight", "OPTIONS", "/api/predict/collision", "", http.StatusOK},
		{"stream query token", "GET", "/api/stream/trajectory/25544?access_token=s3cret", "", http.StatusOK},
		{"stream wrong query token", "GET", "/api/stream/trajectory/25544?access_token=nope", "", http.StatusUnauthorized},
		{"query token outside stream", "GET", "/api/satellites?access_token=s3cret", "", http.StatusUnauthorized},
		{"header beats query", "GET", "/api/stream/trajectory/25544?access_token=s3cret", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	h := Middleware(Config{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/api/satellites", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with auth disabled", w.Code)
	}
}
