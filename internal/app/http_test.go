package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"huddle/api/internal/auth"
	"huddle/api/internal/store"
)

func newTestServer(fake *fakeStore) *HTTPServer {
	return NewHTTPServer(newTestService(fake), "*")
}

func issueTestToken(t *testing.T, userID, userName string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  userID,
		Name: userName,
		JTI:  "jti_test",
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(&fakeStore{})
	response := doRequest(server, http.MethodGet, "/api/health", "", "")
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", response.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	server := newTestServer(&fakeStore{})
	response := doRequest(server, http.MethodGet, "/api/resources?projectId=prj_1", "", "")
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", response.Code)
	}
}

func TestPublicShareRouteSkipsAuth(t *testing.T) {
	fake := &fakeStore{
		getShareByCode: func(ctx context.Context, code string) (store.Share, error) {
			return store.Share{ID: "shr_1", ResourceID: "res_1"}, nil
		},
		getResource: func(ctx context.Context, id string) (store.Resource, error) {
			return store.Resource{ID: id, Name: "Shared Notes"}, nil
		},
	}
	server := newTestServer(fake)
	response := doRequest(server, http.MethodGet, "/api/share/AbCd123456", "", "")
	if response.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
	}
	var payload SharedResource
	if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Resource.Name != "Shared Notes" {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

func TestCreateResourceOverHTTP(t *testing.T) {
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Casey"}, nil
		},
		projectExists: func(ctx context.Context, id string) (bool, error) { return true, nil },
	}
	server := newTestServer(fake)
	token := issueTestToken(t, "usr_1", "Casey")

	body := `{"name":"Notes","projectId":"prj_1","content":{"type":"document","content":"# Hi","format":"markdown","version":1}}`
	response := doRequest(server, http.MethodPost, "/api/resources", token, body)
	if response.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", response.Code, response.Body.String())
	}
	var resource store.Resource
	if err := json.Unmarshal(response.Body.Bytes(), &resource); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resource.Type != store.TypeDocument || resource.CreatedBy != "usr_1" {
		t.Fatalf("unexpected resource %+v", resource)
	}
}

func TestJoinEndedSessionOverHTTP(t *testing.T) {
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Casey"}, nil
		},
		joinSession: func(ctx context.Context, sessionID, userID string) (store.CollabSession, error) {
			return store.CollabSession{}, store.ErrSessionEnded
		},
	}
	server := newTestServer(fake)
	token := issueTestToken(t, "usr_1", "Casey")

	response := doRequest(server, http.MethodPost, "/api/sessions/ses_1/join", token, "")
	if response.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", response.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["code"] != "SESSION_ENDED" {
		t.Fatalf("expected SESSION_ENDED, got %v", payload["code"])
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Casey"}, nil
		},
	}
	server := newTestServer(fake)
	token := issueTestToken(t, "usr_1", "Casey")

	response := doRequest(server, http.MethodGet, "/api/widgets", token, "")
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.Code)
	}
}

func TestMethodNotAllowedOnTeams(t *testing.T) {
	fake := &fakeStore{
		getUserByID: func(ctx context.Context, id string) (store.User, error) {
			return store.User{ID: id, DisplayName: "Casey"}, nil
		},
	}
	server := newTestServer(fake)
	token := issueTestToken(t, "usr_1", "Casey")

	response := doRequest(server, http.MethodPut, "/api/teams", token, "")
	if response.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", response.Code)
	}
}
