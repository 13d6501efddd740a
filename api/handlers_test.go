package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyverse-de/hub-gateway/client/hub"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T, upstream http.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	router := gin.New()
	NewHandler(hub.NewHubClient(srv.URL, "sekret", true, 5*time.Second)).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetUserTranslatesAnyFailureTo404(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "not found"}`, http.StatusNotFound)
	})

	w := doJSON(router, http.MethodGet, "/users/ghost", "")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ghost") {
		t.Errorf("body %q does not name the missing user", w.Body.String())
	}
}

// Group, service, and token lookups get no 404 translation; an upstream
// rejection surfaces as a generic server error. The asymmetry with GetUser
// is intentional.
func TestOtherLookupsSurfaceGenericServerError(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message": "not found"}`, http.StatusNotFound)
	})

	for _, path := range []string{"/groups/ghost", "/services/ghost", "/tokens/ghost"} {
		w := doJSON(router, http.MethodGet, path, "")
		if w.Code != http.StatusInternalServerError {
			t.Errorf("GET %s status = %d, want 500", path, w.Code)
		}
	}
}

func TestCreateUserReturns201AndDefaultsAdminFalse(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		// Echo back the user record the way the hub would.
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(body)
	})

	w := doJSON(router, http.MethodPost, "/users", `{"name": "alice"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var user hub.User
	if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
		t.Fatalf("response is not a user record: %v", err)
	}
	if user.Name != "alice" {
		t.Errorf("name = %q, want alice", user.Name)
	}
	if user.Admin {
		t.Error("admin = true, want the omitted flag to default to false")
	}
}

func TestCreateUserRejectsInvalidBodyBeforeUpstream(t *testing.T) {
	upstreamCalled := false
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamCalled = true
	})

	for _, body := range []string{`{"admin": true}`, `{not json`} {
		w := doJSON(router, http.MethodPost, "/users", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, w.Code)
		}
	}

	if upstreamCalled {
		t.Error("invalid request reached the upstream hub")
	}
}

func TestDeleteUserReturns204WithNoBody(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := doJSON(router, http.MethodDelete, "/users/alice", "")

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestServerStartAndStopStatusCodes(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		case http.MethodDelete:
			// Stop accepted; teardown continues upstream.
			w.WriteHeader(http.StatusAccepted)
		}
	})

	// Default (unnamed) server.
	if w := doJSON(router, http.MethodPost, "/users/alice/servers", ""); w.Code != http.StatusCreated {
		t.Errorf("start status = %d, want 201", w.Code)
	}
	if w := doJSON(router, http.MethodDelete, "/users/alice/servers", ""); w.Code != http.StatusAccepted {
		t.Errorf("stop status = %d, want 202", w.Code)
	}

	// Named server.
	if w := doJSON(router, http.MethodPost, "/users/alice/servers/gpu", ""); w.Code != http.StatusCreated {
		t.Errorf("named start status = %d, want 201", w.Code)
	}
	if w := doJSON(router, http.MethodDelete, "/users/alice/servers/gpu", ""); w.Code != http.StatusAccepted {
		t.Errorf("named stop status = %d, want 202", w.Code)
	}
}

func TestListUserServersReturnsMapping(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "alice", "servers": {"": {"name": ""}, "gpu": {"name": "gpu"}}}`))
	})

	w := doJSON(router, http.MethodGet, "/users/alice/servers", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var servers map[string]hub.Server
	if err := json.Unmarshal(w.Body.Bytes(), &servers); err != nil {
		t.Fatalf("response is not a server mapping: %v", err)
	}
	if len(servers) != 2 {
		t.Errorf("got %d servers, want 2", len(servers))
	}
	if _, ok := servers[""]; !ok {
		t.Error("default server key missing")
	}
}

func TestGroupMembershipRoutes(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name": "scientists", "users": ["alice", "bob", "carol"]}`))
	})

	w := doJSON(router, http.MethodPost, "/groups/scientists/users", `{"username": "carol"}`)
	if w.Code != http.StatusOK {
		t.Errorf("add member status = %d, want 200", w.Code)
	}

	w = doJSON(router, http.MethodPost, "/groups/scientists/users", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("add member without username status = %d, want 400", w.Code)
	}

	w = doJSON(router, http.MethodDelete, "/groups/scientists/users/bob", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("remove member status = %d, want 204", w.Code)
	}
}

func TestHealthRouteAlwaysAnswers200(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Point the client at a hub that's already gone.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	hubClient := hub.NewHubClient(srv.URL, "sekret", true, 2*time.Second)
	srv.Close()

	router := gin.New()
	NewHandler(hubClient).RegisterRoutes(router)

	w := doJSON(router, http.MethodGet, "/health", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var h hub.Health
	if err := json.Unmarshal(w.Body.Bytes(), &h); err != nil {
		t.Fatalf("response is not a health payload: %v", err)
	}
	if h.Status != "error" || h.Detail == "" {
		t.Errorf("health = %+v, want degraded error status with detail", h)
	}
}

func TestCreateTokenRoute(t *testing.T) {
	router := newTestRouter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"token": "abc123", "id": "a1", "user": "alice"}`))
	})

	w := doJSON(router, http.MethodPost, "/users/alice/tokens", `{"note": "ci token", "expires_in": 3600}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}

	var tok hub.Token
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatalf("response is not a token: %v", err)
	}
	if tok.Token != "abc123" {
		t.Errorf("token = %q, want the creation-time secret", tok.Token)
	}
}

func TestRequestLoggerAssignsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestLogger())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("X-Request-ID = %q, want the caller's value honored", got)
	}
}
