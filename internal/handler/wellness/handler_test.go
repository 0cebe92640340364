package wellness

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/solace/backend/internal/middleware"
	wellnessService "github.com/zhouzirui/solace/backend/internal/service/wellness"
	"github.com/zhouzirui/solace/backend/internal/store"
)

func setupRouter(user string) (*chi.Mux, *store.MemoryStore) {
	st := store.NewMemoryStore()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), user)))
		})
	})
	New(wellnessService.NewService(st, nil, nil), nil).RegisterRoutes(r)
	return r, st
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCreateMoodEndpoint(t *testing.T) {
	r, st := setupRouter("u1")

	resp := post(r, "/api/mood", `{"score":55,"note":"ok"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"success":true`) {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
	if len(st.Moods()) != 1 {
		t.Fatalf("expected one stored mood")
	}

	resp = post(r, "/api/mood", `{"score":150}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range score, got %d", resp.Code)
	}
}

func TestLogActivityEndpoint(t *testing.T) {
	r, st := setupRouter("u1")

	resp := post(r, "/api/activity", `{"type":"breathing","name":"Box breathing","duration":5}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if len(st.Activities()) != 1 {
		t.Fatalf("expected one stored activity")
	}

	resp = post(r, "/api/activity", `{"name":"missing type"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestWellnessRequiresUser(t *testing.T) {
	r, _ := setupRouter("")

	resp := post(r, "/api/mood", `{"score":10}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}
