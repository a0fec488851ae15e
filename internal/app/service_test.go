package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"huddle/api/internal/config"
	"huddle/api/internal/store"
)

// fakeStore implements dataStore with overridable function fields. Unset
// getters report sql.ErrNoRows; unset mutations succeed.
type fakeStore struct {
	getUserByID        func(ctx context.Context, id string) (store.User, error)
	projectExists      func(ctx context.Context, id string) (bool, error)
	insertResource     func(ctx context.Context, resource store.Resource) error
	getResource        func(ctx context.Context, id string) (store.Resource, error)
	updateResource     func(ctx context.Context, resourceID, versionID string, patch store.ResourcePatch, message, actorID string) (store.Resource, bool, error)
	deleteResource     func(ctx context.Context, id string) error
	listVersions       func(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.ResourceVersion, error)
	getVersion         func(ctx context.Context, resourceID string, versionNumber int) (store.ResourceVersion, error)
	upsertFavorite     func(ctx context.Context, favorite store.Favorite) (store.Favorite, error)
	listFavorites      func(ctx context.Context, userID string) ([]store.Favorite, error)
	recordAccess       func(ctx context.Context, event store.AccessEvent) (store.Resource, error)
	insertComment      func(ctx context.Context, comment store.Comment) error
	getComment         func(ctx context.Context, id string) (store.Comment, error)
	updateComment      func(ctx context.Context, id, content string) (store.Comment, error)
	toggleResolution   func(ctx context.Context, id, actorID string) (store.Comment, error)
	listComments       func(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.Comment, error)
	insertShare        func(ctx context.Context, share store.Share) error
	getShareByCode     func(ctx context.Context, code string) (store.Share, error)
	recordShareAccess  func(ctx context.Context, shareID string) error
	joinSession        func(ctx context.Context, sessionID, userID string) (store.CollabSession, error)
	leaveSession       func(ctx context.Context, sessionID, userID string) (store.CollabSession, error)
	appendChange       func(ctx context.Context, sessionID string, change store.SessionChange) (store.CollabSession, error)
	insertSession      func(ctx context.Context, session store.CollabSession) error
	addResourceTags    func(ctx context.Context, resourceID string, tags []string) (store.Resource, error)
	removeResourceTags func(ctx context.Context, resourceID string, tags []string) (store.Resource, error)
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByID != nil {
		return f.getUserByID(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateUserAvatar(ctx context.Context, userID, url string) error { return nil }

func (f *fakeStore) CreateTeam(ctx context.Context, team store.Team) error { return nil }

func (f *fakeStore) GetTeam(ctx context.Context, id string) (store.Team, error) {
	return store.Team{}, sql.ErrNoRows
}

func (f *fakeStore) ListTeams(ctx context.Context) ([]store.Team, error) { return nil, nil }

func (f *fakeStore) CreateProject(ctx context.Context, project store.Project) error { return nil }

func (f *fakeStore) GetProject(ctx context.Context, id string) (store.Project, error) {
	return store.Project{}, sql.ErrNoRows
}

func (f *fakeStore) ListProjects(ctx context.Context) ([]store.Project, error) { return nil, nil }

func (f *fakeStore) ProjectExists(ctx context.Context, id string) (bool, error) {
	if f.projectExists != nil {
		return f.projectExists(ctx, id)
	}
	return false, nil
}

func (f *fakeStore) RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error {
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return false, nil
}

func (f *fakeStore) InsertResource(ctx context.Context, resource store.Resource) error {
	if f.insertResource != nil {
		return f.insertResource(ctx, resource)
	}
	return nil
}

func (f *fakeStore) GetResource(ctx context.Context, id string) (store.Resource, error) {
	if f.getResource != nil {
		return f.getResource(ctx, id)
	}
	return store.Resource{}, sql.ErrNoRows
}

func (f *fakeStore) ListResourcesByProject(ctx context.Context, projectID string) ([]store.Resource, error) {
	return nil, nil
}

func (f *fakeStore) ListResourcesByType(ctx context.Context, projectID, resourceType string) ([]store.Resource, error) {
	return nil, nil
}

func (f *fakeStore) ListResourcesByTag(ctx context.Context, tag, projectID string) ([]store.Resource, error) {
	return nil, nil
}

func (f *fakeStore) UpdateResource(ctx context.Context, resourceID, versionID string, patch store.ResourcePatch, message, actorID string) (store.Resource, bool, error) {
	if f.updateResource != nil {
		return f.updateResource(ctx, resourceID, versionID, patch, message, actorID)
	}
	return store.Resource{}, false, sql.ErrNoRows
}

func (f *fakeStore) DeleteResource(ctx context.Context, id string) error {
	if f.deleteResource != nil {
		return f.deleteResource(ctx, id)
	}
	return nil
}

func (f *fakeStore) AddResourceTags(ctx context.Context, resourceID string, tags []string) (store.Resource, error) {
	if f.addResourceTags != nil {
		return f.addResourceTags(ctx, resourceID, tags)
	}
	return store.Resource{}, sql.ErrNoRows
}

func (f *fakeStore) RemoveResourceTags(ctx context.Context, resourceID string, tags []string) (store.Resource, error) {
	if f.removeResourceTags != nil {
		return f.removeResourceTags(ctx, resourceID, tags)
	}
	return store.Resource{}, sql.ErrNoRows
}

func (f *fakeStore) ListResourceVersions(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.ResourceVersion, error) {
	if f.listVersions != nil {
		return f.listVersions(ctx, resourceID, cursor, limit)
	}
	return nil, nil
}

func (f *fakeStore) GetResourceVersion(ctx context.Context, resourceID string, versionNumber int) (store.ResourceVersion, error) {
	if f.getVersion != nil {
		return f.getVersion(ctx, resourceID, versionNumber)
	}
	return store.ResourceVersion{}, sql.ErrNoRows
}

func (f *fakeStore) UpsertFavorite(ctx context.Context, favorite store.Favorite) (store.Favorite, error) {
	if f.upsertFavorite != nil {
		return f.upsertFavorite(ctx, favorite)
	}
	return favorite, nil
}

func (f *fakeStore) DeleteFavorite(ctx context.Context, resourceID, userID string) error { return nil }

func (f *fakeStore) ListFavoritesByUser(ctx context.Context, userID string) ([]store.Favorite, error) {
	if f.listFavorites != nil {
		return f.listFavorites(ctx, userID)
	}
	return nil, nil
}

func (f *fakeStore) RecordAccess(ctx context.Context, event store.AccessEvent) (store.Resource, error) {
	if f.recordAccess != nil {
		return f.recordAccess(ctx, event)
	}
	return store.Resource{}, sql.ErrNoRows
}

func (f *fakeStore) InsertComment(ctx context.Context, comment store.Comment) error {
	if f.insertComment != nil {
		return f.insertComment(ctx, comment)
	}
	return nil
}

func (f *fakeStore) GetComment(ctx context.Context, id string) (store.Comment, error) {
	if f.getComment != nil {
		return f.getComment(ctx, id)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateCommentContent(ctx context.Context, id, content string) (store.Comment, error) {
	if f.updateComment != nil {
		return f.updateComment(ctx, id, content)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) ToggleCommentResolution(ctx context.Context, id, actorID string) (store.Comment, error) {
	if f.toggleResolution != nil {
		return f.toggleResolution(ctx, id, actorID)
	}
	return store.Comment{}, sql.ErrNoRows
}

func (f *fakeStore) ListComments(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.Comment, error) {
	if f.listComments != nil {
		return f.listComments(ctx, resourceID, cursor, limit)
	}
	return nil, nil
}

func (f *fakeStore) InsertShare(ctx context.Context, share store.Share) error {
	if f.insertShare != nil {
		return f.insertShare(ctx, share)
	}
	return nil
}

func (f *fakeStore) ListShares(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.Share, error) {
	return nil, nil
}

func (f *fakeStore) ListSharedWithUser(ctx context.Context, userID string, cursor store.Cursor, limit int) ([]store.Share, error) {
	return nil, nil
}

func (f *fakeStore) GetShareByCode(ctx context.Context, code string) (store.Share, error) {
	if f.getShareByCode != nil {
		return f.getShareByCode(ctx, code)
	}
	return store.Share{}, sql.ErrNoRows
}

func (f *fakeStore) RecordShareAccess(ctx context.Context, shareID string) error {
	if f.recordShareAccess != nil {
		return f.recordShareAccess(ctx, shareID)
	}
	return nil
}

func (f *fakeStore) InsertCollabSession(ctx context.Context, session store.CollabSession) error {
	if f.insertSession != nil {
		return f.insertSession(ctx, session)
	}
	return nil
}

func (f *fakeStore) GetCollabSession(ctx context.Context, id string) (store.CollabSession, error) {
	return store.CollabSession{}, sql.ErrNoRows
}

func (f *fakeStore) JoinCollabSession(ctx context.Context, sessionID, userID string) (store.CollabSession, error) {
	if f.joinSession != nil {
		return f.joinSession(ctx, sessionID, userID)
	}
	return store.CollabSession{}, sql.ErrNoRows
}

func (f *fakeStore) LeaveCollabSession(ctx context.Context, sessionID, userID string) (store.CollabSession, error) {
	if f.leaveSession != nil {
		return f.leaveSession(ctx, sessionID, userID)
	}
	return store.CollabSession{}, sql.ErrNoRows
}

func (f *fakeStore) AppendSessionChange(ctx context.Context, sessionID string, change store.SessionChange) (store.CollabSession, error) {
	if f.appendChange != nil {
		return f.appendChange(ctx, sessionID, change)
	}
	return store.CollabSession{}, sql.ErrNoRows
}

func (f *fakeStore) ListActiveSessions(ctx context.Context, resourceID string) ([]store.CollabSession, error) {
	return nil, nil
}

func (f *fakeStore) ListActivities(ctx context.Context, entityID string, limit int) ([]store.Activity, error) {
	return nil, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

func newTestService(fake *fakeStore) *Service {
	return &Service{cfg: config.Config{JWTSecret: "test-secret"}, store: fake, sessions: nil}
}

func wantDomainError(t *testing.T, err error, status int, code string) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status || domainErr.Code != code {
		t.Fatalf("expected %d %s, got %d %s", status, code, domainErr.Status, domainErr.Code)
	}
}

var documentContent = json.RawMessage(`{"type":"document","content":"# Notes","format":"markdown","version":1}`)

func TestCreateResourceRequiresAuthentication(t *testing.T) {
	service := newTestService(&fakeStore{})
	_, err := service.CreateResource(context.Background(), "", CreateResourceInput{
		Name:      "Notes",
		ProjectID: "prj_1",
		Content:   documentContent,
	})
	wantDomainError(t, err, http.StatusUnauthorized, "UNAUTHENTICATED")
}

func TestCreateResourceRejectsUnknownProject(t *testing.T) {
	fake := &fakeStore{
		projectExists: func(ctx context.Context, id string) (bool, error) { return false, nil },
	}
	service := newTestService(fake)
	_, err := service.CreateResource(context.Background(), "usr_1", CreateResourceInput{
		Name:      "Notes",
		ProjectID: "prj_missing",
		Content:   documentContent,
	})
	wantDomainError(t, err, http.StatusNotFound, "PROJECT_NOT_FOUND")
}

func TestCreateResourceRejectsMalformedContent(t *testing.T) {
	service := newTestService(&fakeStore{})
	_, err := service.CreateResource(context.Background(), "usr_1", CreateResourceInput{
		Name:      "Notes",
		ProjectID: "prj_1",
		Content:   json.RawMessage(`{"type":"spreadsheet"}`),
	})
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestCreateResourceDerivesTypeFromContent(t *testing.T) {
	var inserted store.Resource
	fake := &fakeStore{
		projectExists:  func(ctx context.Context, id string) (bool, error) { return true, nil },
		insertResource: func(ctx context.Context, resource store.Resource) error { inserted = resource; return nil },
	}
	service := newTestService(fake)
	resource, err := service.CreateResource(context.Background(), "usr_1", CreateResourceInput{
		Name:      "Notes",
		ProjectID: "prj_1",
		Content:   documentContent,
	})
	if err != nil {
		t.Fatalf("CreateResource() error = %v", err)
	}
	if resource.Type != store.TypeDocument || inserted.Type != store.TypeDocument {
		t.Fatalf("expected document type, got %q / %q", resource.Type, inserted.Type)
	}
	if inserted.Tags == nil || len(inserted.Tags) != 0 {
		t.Fatalf("expected empty tag list, got %v", inserted.Tags)
	}
	if resource.Visibility != store.VisibilityPrivate {
		t.Fatalf("expected default private visibility, got %q", resource.Visibility)
	}
}

func TestUpdateResourceMapsMissingResource(t *testing.T) {
	service := newTestService(&fakeStore{})
	name := "Renamed"
	_, _, err := service.UpdateResource(context.Background(), "usr_1", "res_missing", UpdateResourceInput{Name: &name})
	wantDomainError(t, err, http.StatusNotFound, "RESOURCE_NOT_FOUND")
}

func TestGetResourceReturnsNilWhenMissing(t *testing.T) {
	service := newTestService(&fakeStore{})
	resource, err := service.GetResource(context.Background(), "res_missing")
	if err != nil {
		t.Fatalf("GetResource() error = %v", err)
	}
	if resource != nil {
		t.Fatalf("expected nil resource, got %+v", resource)
	}
}

func TestRestoreBuildsPatchFromVersion(t *testing.T) {
	var gotPatch store.ResourcePatch
	var gotMessage string
	fake := &fakeStore{
		getVersion: func(ctx context.Context, resourceID string, versionNumber int) (store.ResourceVersion, error) {
			content, err := store.NewResourceContent(documentContent)
			if err != nil {
				t.Fatalf("build content: %v", err)
			}
			return store.ResourceVersion{
				ResourceID:    resourceID,
				VersionNumber: versionNumber,
				Name:          "Old Name",
				Description:   "old description",
				Content:       content,
			}, nil
		},
		updateResource: func(ctx context.Context, resourceID, versionID string, patch store.ResourcePatch, message, actorID string) (store.Resource, bool, error) {
			gotPatch = patch
			gotMessage = message
			return store.Resource{ID: resourceID, Name: *patch.Name}, true, nil
		},
	}
	service := newTestService(fake)
	resource, err := service.RestoreResourceVersion(context.Background(), "usr_1", "res_1", 3, "")
	if err != nil {
		t.Fatalf("RestoreResourceVersion() error = %v", err)
	}
	if resource.Name != "Old Name" {
		t.Fatalf("expected restored name, got %q", resource.Name)
	}
	if gotPatch.Name == nil || *gotPatch.Name != "Old Name" {
		t.Fatal("expected name in restore patch")
	}
	if gotPatch.Description == nil || *gotPatch.Description != "old description" {
		t.Fatal("expected description in restore patch")
	}
	if gotPatch.Content == nil || gotPatch.Content.Type != store.TypeDocument {
		t.Fatal("expected content in restore patch")
	}
	if gotMessage != "Restored to version 3" {
		t.Fatalf("unexpected restore message %q", gotMessage)
	}
	if !gotPatch.ForceVersion {
		t.Fatal("expected restore to force a version even when the state is unchanged")
	}
}

func TestRegularUpdateDoesNotForceVersion(t *testing.T) {
	var gotPatch store.ResourcePatch
	fake := &fakeStore{
		updateResource: func(ctx context.Context, resourceID, versionID string, patch store.ResourcePatch, message, actorID string) (store.Resource, bool, error) {
			gotPatch = patch
			return store.Resource{ID: resourceID}, false, nil
		},
	}
	service := newTestService(fake)
	name := "Renamed"
	if _, _, err := service.UpdateResource(context.Background(), "usr_1", "res_1", UpdateResourceInput{Name: &name}); err != nil {
		t.Fatalf("UpdateResource() error = %v", err)
	}
	if gotPatch.ForceVersion {
		t.Fatal("plain updates must not force versions")
	}
}

func TestListResourceVersionsPagination(t *testing.T) {
	versions := []store.ResourceVersion{
		{VersionNumber: 5}, {VersionNumber: 4}, {VersionNumber: 3},
	}
	fake := &fakeStore{
		listVersions: func(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.ResourceVersion, error) {
			if limit != 2 {
				t.Fatalf("expected clamped limit 2, got %d", limit)
			}
			return versions, nil
		},
	}
	service := newTestService(fake)
	page, err := service.ListResourceVersions(context.Background(), "res_1", "", 2)
	if err != nil {
		t.Fatalf("ListResourceVersions() error = %v", err)
	}
	if len(page.Versions) != 2 || page.IsDone {
		t.Fatalf("expected partial page, got %d versions isDone=%v", len(page.Versions), page.IsDone)
	}
	cursor, err := store.DecodeCursor(page.Cursor)
	if err != nil {
		t.Fatalf("decode cursor: %v", err)
	}
	if cursor.VersionNumber != 4 {
		t.Fatalf("expected cursor at version 4, got %d", cursor.VersionNumber)
	}
}

func TestListResourceVersionsFinalPage(t *testing.T) {
	fake := &fakeStore{
		listVersions: func(ctx context.Context, resourceID string, cursor store.Cursor, limit int) ([]store.ResourceVersion, error) {
			return []store.ResourceVersion{{VersionNumber: 1}}, nil
		},
	}
	service := newTestService(fake)
	page, err := service.ListResourceVersions(context.Background(), "res_1", "", 2)
	if err != nil {
		t.Fatalf("ListResourceVersions() error = %v", err)
	}
	if !page.IsDone || page.Cursor != "" {
		t.Fatalf("expected final page, got isDone=%v cursor=%q", page.IsDone, page.Cursor)
	}
}

func TestRecordAccessValidatesType(t *testing.T) {
	service := newTestService(&fakeStore{})
	_, err := service.RecordAccess(context.Background(), "usr_1", "res_1", "peek")
	wantDomainError(t, err, http.StatusUnprocessableEntity, "VALIDATION_ERROR")
}

func TestAddFavoriteIsUpsert(t *testing.T) {
	existing := store.Favorite{ID: "fav_existing", ResourceID: "res_1", UserID: "usr_1", Notes: "keep"}
	fake := &fakeStore{
		upsertFavorite: func(ctx context.Context, favorite store.Favorite) (store.Favorite, error) {
			return existing, nil
		},
	}
	service := newTestService(fake)
	favorite, err := service.AddFavorite(context.Background(), "usr_1", "res_1", "")
	if err != nil {
		t.Fatalf("AddFavorite() error = %v", err)
	}
	if favorite.ID != "fav_existing" || favorite.Notes != "keep" {
		t.Fatalf("expected existing favorite back, got %+v", favorite)
	}
}

func TestListFavoritesSkipsDeletedResources(t *testing.T) {
	fake := &fakeStore{
		listFavorites: func(ctx context.Context, userID string) ([]store.Favorite, error) {
			return []store.Favorite{
				{ID: "fav_1", ResourceID: "res_live"},
				{ID: "fav_2", ResourceID: "res_gone"},
			}, nil
		},
		getResource: func(ctx context.Context, id string) (store.Resource, error) {
			if id == "res_live" {
				return store.Resource{ID: id, Name: "Alive"}, nil
			}
			return store.Resource{}, sql.ErrNoRows
		},
	}
	service := newTestService(fake)
	items, err := service.ListFavorites(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("ListFavorites() error = %v", err)
	}
	if len(items) != 1 || items[0].Resource.ID != "res_live" {
		t.Fatalf("expected only the live resource, got %+v", items)
	}
}
