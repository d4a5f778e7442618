package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielflataker/usv-autopilot/internal/codec"
)

func TestHealthzIsUnauthenticated(t *testing.T) {
	r := NewRouter(NewStore(), []byte("secret"))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRecordsRequiresToken(t *testing.T) {
	r := NewRouter(NewStore(), []byte("secret"))
	req := httptest.NewRequest(http.MethodGet, "/records/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRecordsWithValidToken(t *testing.T) {
	secret := []byte("secret")
	store := NewStore()
	store.Set(&codec.DecodeResult{
		Counts: map[string]int{"NAV_SOLUTION": 1},
		Records: map[string]*codec.Columns{
			"NAV_SOLUTION": {TUs: []uint64{1}, Fields: map[string][]float64{"x": {1.0}}},
		},
	})
	r := NewRouter(store, secret)

	token, err := IssueToken(secret, "inspector", time.Minute)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/records/NAV_SOLUTION", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}
