package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"huddle/api/internal/auth"
	"huddle/api/internal/authpw"
	"huddle/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "userName": session.UserName, "userId": session.UserID})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":        session.Token,
			"refreshToken": session.RefreshToken,
			"userName":     session.UserName,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)

	// Public share-link resolution: the access code is the credential.
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "share" {
		shared, err := s.service.ResolveShareByCode(r.Context(), parts[2])
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, shared)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// /api/teams
	if len(parts) == 2 && parts[0] == "api" && parts[1] == "teams" {
		switch r.Method {
		case http.MethodGet:
			teams, err := s.service.ListTeams(r.Context())
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			team, err := s.service.CreateTeam(r.Context(), session.UserID, body.Name, body.Description)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, team)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/projects
	if len(parts) == 2 && parts[0] == "api" && parts[1] == "projects" {
		switch r.Method {
		case http.MethodGet:
			projects, err := s.service.ListProjects(r.Context())
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		case http.MethodPost:
			var body CreateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), session.UserID, body)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/projects/{id}
	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "api" && parts[1] == "projects" {
		project, err := s.service.GetProject(r.Context(), parts[2])
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
		return
	}

	// /api/favorites
	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "api" && parts[1] == "favorites" {
		favorites, err := s.service.ListFavorites(r.Context(), session.UserID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"favorites": favorites})
		return
	}

	// /api/shared-with-me
	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "api" && parts[1] == "shared-with-me" {
		page, err := s.service.ListSharedWithMe(r.Context(), session.UserID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	// /api/users/avatar
	if r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "api" && parts[1] == "users" && parts[2] == "avatar" {
		s.handleAvatarUpload(w, r, session)
		return
	}

	// /api/resources and below
	if len(parts) >= 2 && parts[0] == "api" && parts[1] == "resources" {
		s.handleResources(w, r, session, parts[2:])
		return
	}

	// /api/comments/{id} and /api/comments/{id}/resolve
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "comments" {
		s.handleComments(w, r, session, parts[2:])
		return
	}

	// /api/sessions/{id} and subroutes
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "sessions" {
		s.handleSessions(w, r, session, parts[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"expiresAt":    session.ExpiresAt,
	}
}

// handleResources routes everything under /api/resources. rest holds the path
// segments after "resources".
func (s *HTTPServer) handleResources(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	// /api/resources
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			query := r.URL.Query()
			resources, err := s.service.ListResources(r.Context(), query.Get("projectId"), query.Get("type"), query.Get("tag"))
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
		case http.MethodPost:
			var body CreateResourceInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			resource, err := s.service.CreateResource(r.Context(), session.UserID, body)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, resource)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/search
	if r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "search" {
		query := r.URL.Query()
		response := s.service.SearchResources(
			r.Context(),
			query.Get("q"),
			query.Get("projectId"),
			query.Get("type"),
			queryInt(r, "limit"),
			queryInt(r, "offset"),
		)
		writeJSON(w, http.StatusOK, response)
		return
	}

	resourceID := rest[0]

	// /api/resources/{id}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			resource, err := s.service.GetResource(r.Context(), resourceID)
			if err != nil {
				mapError(w, err)
				return
			}
			if resource == nil {
				writeError(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found", nil)
				return
			}
			writeJSON(w, http.StatusOK, resource)
		case http.MethodPatch:
			var body UpdateResourceInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			resource, versionCreated, err := s.service.UpdateResource(r.Context(), session.UserID, resourceID, body)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"resource": resource, "versionCreated": versionCreated})
		case http.MethodDelete:
			if err := s.service.DeleteResource(r.Context(), session.UserID, resourceID); err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/{id}/share
	if r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "share" {
		var body struct {
			Visibility string `json:"visibility"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resource, err := s.service.ShareResourceVisibility(r.Context(), session.UserID, resourceID, body.Visibility)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resource)
		return
	}

	// /api/resources/{id}/versions
	if r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "versions" {
		page, err := s.service.ListResourceVersions(r.Context(), resourceID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	// /api/resources/{id}/versions/{n}
	if r.Method == http.MethodGet && len(rest) == 3 && rest[1] == "versions" {
		versionNumber, err := strconv.Atoi(rest[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_VERSION", "Version number must be an integer", nil)
			return
		}
		version, err := s.service.GetResourceVersion(r.Context(), resourceID, versionNumber)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, version)
		return
	}

	// /api/resources/{id}/restore
	if r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "restore" {
		var body struct {
			VersionNumber int    `json:"versionNumber"`
			Message       string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resource, err := s.service.RestoreResourceVersion(r.Context(), session.UserID, resourceID, body.VersionNumber, body.Message)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resource)
		return
	}

	// /api/resources/{id}/tags
	if len(rest) == 2 && rest[1] == "tags" {
		var body struct {
			Tags []string `json:"tags"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var resource store.Resource
		var err error
		switch r.Method {
		case http.MethodPost:
			resource, err = s.service.AddResourceTags(r.Context(), session.UserID, resourceID, body.Tags)
		case http.MethodDelete:
			resource, err = s.service.RemoveResourceTags(r.Context(), session.UserID, resourceID, body.Tags)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resource)
		return
	}

	// /api/resources/{id}/favorite
	if len(rest) == 2 && rest[1] == "favorite" {
		switch r.Method {
		case http.MethodPost:
			var body struct {
				Notes string `json:"notes"`
			}
			_ = decodeBody(r, &body)
			favorite, err := s.service.AddFavorite(r.Context(), session.UserID, resourceID, body.Notes)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, favorite)
		case http.MethodDelete:
			if err := s.service.RemoveFavorite(r.Context(), session.UserID, resourceID); err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/{id}/access
	if r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "access" {
		var body struct {
			AccessType string `json:"accessType"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		resource, err := s.service.RecordAccess(r.Context(), session.UserID, resourceID, body.AccessType)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resource)
		return
	}

	// /api/resources/{id}/comments
	if len(rest) == 2 && rest[1] == "comments" {
		switch r.Method {
		case http.MethodGet:
			page, err := s.service.ListComments(r.Context(), resourceID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, page)
		case http.MethodPost:
			var body struct {
				Content  string `json:"content"`
				ParentID string `json:"parentCommentId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			comment, err := s.service.AddComment(r.Context(), session.UserID, resourceID, body.Content, body.ParentID)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, comment)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/{id}/shares
	if len(rest) == 2 && rest[1] == "shares" {
		switch r.Method {
		case http.MethodGet:
			page, err := s.service.ListShares(r.Context(), resourceID, r.URL.Query().Get("cursor"), queryInt(r, "limit"))
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, page)
		case http.MethodPost:
			var body ShareInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			share, err := s.service.ShareWithTarget(r.Context(), session.UserID, resourceID, body)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, share)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/{id}/share-links
	if r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "share-links" {
		var body struct {
			Permissions []string   `json:"permissions"`
			ExpiresAt   *time.Time `json:"expiresAt"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		link, err := s.service.CreateShareLink(r.Context(), session.UserID, resourceID, body.Permissions, body.ExpiresAt)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, link)
		return
	}

	// /api/resources/{id}/sessions
	if len(rest) == 2 && rest[1] == "sessions" {
		switch r.Method {
		case http.MethodGet:
			sessions, err := s.service.ListActiveSessions(r.Context(), resourceID)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
		case http.MethodPost:
			collabSession, err := s.service.StartCollabSession(r.Context(), session.UserID, resourceID)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, collabSession)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// /api/resources/{id}/activity
	if r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "activity" {
		activities, err := s.service.ListResourceActivity(r.Context(), resourceID, queryInt(r, "limit"))
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"activities": activities})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleComments routes /api/comments/{id} and /api/comments/{id}/resolve.
func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	commentID := rest[0]

	if r.Method == http.MethodPatch && len(rest) == 1 {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.UpdateComment(r.Context(), session.UserID, commentID, body.Content)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comment)
		return
	}

	if r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "resolve" {
		comment, err := s.service.ToggleCommentResolution(r.Context(), session.UserID, commentID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, comment)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleSessions routes /api/sessions/{id} and its join/leave/changes subroutes.
func (s *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	sessionID := rest[0]

	if r.Method == http.MethodGet && len(rest) == 1 {
		collabSession, err := s.service.GetCollabSession(r.Context(), sessionID)
		if err != nil {
			mapError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, collabSession)
		return
	}

	if r.Method == http.MethodPost && len(rest) == 2 {
		switch rest[1] {
		case "join":
			collabSession, err := s.service.JoinCollabSession(r.Context(), session.UserID, sessionID)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, collabSession)
			return
		case "leave":
			collabSession, err := s.service.LeaveCollabSession(r.Context(), session.UserID, sessionID)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, collabSession)
			return
		case "changes":
			var body struct {
				Type    string          `json:"type"`
				Details json.RawMessage `json:"details"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			collabSession, err := s.service.RecordSessionChange(r.Context(), session.UserID, sessionID, body.Type, body.Details)
			if err != nil {
				mapError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, collabSession)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

const maxAvatarSize = 5 << 20

func (s *HTTPServer) handleAvatarUpload(w http.ResponseWriter, r *http.Request, session Session) {
	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, maxAvatarSize)
	defer body.Close()

	url, err := s.service.UploadAvatar(r.Context(), session.UserID, contentType, body, r.ContentLength)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"avatarUrl": url})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		mapError(w, err)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)
		s.setCORSHeaders(w)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		entry := map[string]any{
			"time":      start.UTC().Format(time.RFC3339Nano),
			"requestId": requestID,
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    recorder.status,
			"durMs":     time.Since(start).Milliseconds(),
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			log.Printf("marshal access log: %v", err)
			return
		}
		log.Printf("%s", raw)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func (s *HTTPServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	payload := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}

func mapError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeError(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", nil)
		return
	}
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error", nil)
}

func decodeBody(r *http.Request, target any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}

func splitPath(p string) []string {
	parts := make([]string, 0, 6)
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func queryInt(r *http.Request, key string) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
