package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"huddle/api/internal/activity"
	"huddle/api/internal/auth"
	"huddle/api/internal/authpw"
	"huddle/api/internal/config"
	"huddle/api/internal/search"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

var allowedVisibility = map[string]struct{}{
	store.VisibilityPublic:  {},
	store.VisibilityTeam:    {},
	store.VisibilityPrivate: {},
}

var allowedAccessTypes = map[string]struct{}{
	store.AccessView:     {},
	store.AccessEdit:     {},
	store.AccessShare:    {},
	store.AccessDownload: {},
}

var allowedPermissions = map[string]struct{}{
	store.PermissionView:    {},
	store.PermissionComment: {},
	store.PermissionEdit:    {},
	store.PermissionShare:   {},
}

var allowedChangeTypes = map[string]struct{}{
	store.ChangeEdit:           {},
	store.ChangeComment:        {},
	store.ChangeResolveComment: {},
}

type dataStore interface {
	GetUserByID(context.Context, string) (store.User, error)
	UpdateUserAvatar(context.Context, string, string) error
	CreateTeam(context.Context, store.Team) error
	GetTeam(context.Context, string) (store.Team, error)
	ListTeams(context.Context) ([]store.Team, error)
	CreateProject(context.Context, store.Project) error
	GetProject(context.Context, string) (store.Project, error)
	ListProjects(context.Context) ([]store.Project, error)
	ProjectExists(context.Context, string) (bool, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	InsertResource(context.Context, store.Resource) error
	GetResource(context.Context, string) (store.Resource, error)
	ListResourcesByProject(context.Context, string) ([]store.Resource, error)
	ListResourcesByType(context.Context, string, string) ([]store.Resource, error)
	ListResourcesByTag(context.Context, string, string) ([]store.Resource, error)
	UpdateResource(context.Context, string, string, store.ResourcePatch, string, string) (store.Resource, bool, error)
	DeleteResource(context.Context, string) error
	AddResourceTags(context.Context, string, []string) (store.Resource, error)
	RemoveResourceTags(context.Context, string, []string) (store.Resource, error)
	ListResourceVersions(context.Context, string, store.Cursor, int) ([]store.ResourceVersion, error)
	GetResourceVersion(context.Context, string, int) (store.ResourceVersion, error)
	UpsertFavorite(context.Context, store.Favorite) (store.Favorite, error)
	DeleteFavorite(context.Context, string, string) error
	ListFavoritesByUser(context.Context, string) ([]store.Favorite, error)
	RecordAccess(context.Context, store.AccessEvent) (store.Resource, error)
	InsertComment(context.Context, store.Comment) error
	GetComment(context.Context, string) (store.Comment, error)
	UpdateCommentContent(context.Context, string, string) (store.Comment, error)
	ToggleCommentResolution(context.Context, string, string) (store.Comment, error)
	ListComments(context.Context, string, store.Cursor, int) ([]store.Comment, error)
	InsertShare(context.Context, store.Share) error
	ListShares(context.Context, string, store.Cursor, int) ([]store.Share, error)
	ListSharedWithUser(context.Context, string, store.Cursor, int) ([]store.Share, error)
	GetShareByCode(context.Context, string) (store.Share, error)
	RecordShareAccess(context.Context, string) error
	InsertCollabSession(context.Context, store.CollabSession) error
	GetCollabSession(context.Context, string) (store.CollabSession, error)
	JoinCollabSession(context.Context, string, string) (store.CollabSession, error)
	LeaveCollabSession(context.Context, string, string) (store.CollabSession, error)
	AppendSessionChange(context.Context, string, store.SessionChange) (store.CollabSession, error)
	ListActiveSessions(context.Context, string) ([]store.CollabSession, error)
	ListActivities(context.Context, string, int) ([]store.Activity, error)
	Ping(ctx context.Context) error
}

// sessionStore holds refresh tokens; backed by Redis when configured,
// Postgres otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// avatarStore uploads avatar blobs; backed by MinIO in production.
type avatarStore interface {
	Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   *search.Service
	activity *activity.Recorder
	auth     *authpw.Service
	avatars  avatarStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchSvc *search.Service, recorder *activity.Recorder, authSvc *authpw.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: dataStore,
		search:   searchSvc,
		activity: recorder,
		auth:     authSvc,
	}
}

// NewWithSessionStore is New with an external refresh-token store.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, searchSvc *search.Service, recorder *activity.Recorder, authSvc *authpw.Service, sessions sessionStore) *Service {
	svc := New(cfg, dataStore, searchSvc, recorder, authSvc)
	svc.sessions = sessions
	return svc
}

// SetAvatarStore wires the avatar blob backend.
func (s *Service) SetAvatarStore(avatars avatarStore) {
	s.avatars = avatars
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func requireActor(actorID string) error {
	if actorID == "" {
		return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
	}
	return nil
}

func notFound(code, message string) *DomainError {
	return domainError(http.StatusNotFound, code, message, nil)
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// ---- auth & sessions ----

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.auth.SignUp(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.auth.SignIn(ctx, req)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// UploadAvatar stores the image and points the user's profile at it.
func (s *Service) UploadAvatar(ctx context.Context, actorID, contentType string, body io.Reader, size int64) (string, error) {
	if err := requireActor(actorID); err != nil {
		return "", err
	}
	if s.avatars == nil {
		return "", domainError(http.StatusServiceUnavailable, "AVATARS_UNAVAILABLE", "Avatar storage not configured", nil)
	}
	url, err := s.avatars.Upload(ctx, actorID, contentType, body, size)
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateUserAvatar(ctx, actorID, url); err != nil {
		return "", err
	}
	return url, nil
}

// ---- teams & projects ----

func (s *Service) CreateTeam(ctx context.Context, actorID, name, description string) (store.Team, error) {
	if err := requireActor(actorID); err != nil {
		return store.Team{}, err
	}
	if name == "" {
		return store.Team{}, validationError("name is required")
	}
	team := store.Team{
		ID:          util.NewID("team"),
		Name:        name,
		Description: description,
		CreatedBy:   actorID,
	}
	if err := s.store.CreateTeam(ctx, team); err != nil {
		return store.Team{}, err
	}
	return team, nil
}

func (s *Service) ListTeams(ctx context.Context) ([]store.Team, error) {
	return s.store.ListTeams(ctx)
}

type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TeamID      string `json:"teamId"`
	Visibility  string `json:"visibility"`
}

func (s *Service) CreateProject(ctx context.Context, actorID string, input CreateProjectInput) (store.Project, error) {
	if err := requireActor(actorID); err != nil {
		return store.Project{}, err
	}
	if input.Name == "" {
		return store.Project{}, validationError("name is required")
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = store.VisibilityTeam
	}
	if _, ok := allowedVisibility[visibility]; !ok {
		return store.Project{}, validationError("visibility must be one of public, team, private")
	}
	if input.TeamID != "" {
		if _, err := s.store.GetTeam(ctx, input.TeamID); err != nil {
			if store.IsNotFound(err) {
				return store.Project{}, notFound("TEAM_NOT_FOUND", "Team not found")
			}
			return store.Project{}, err
		}
	}
	project := store.Project{
		ID:          util.NewID("prj"),
		TeamID:      input.TeamID,
		Name:        input.Name,
		Description: input.Description,
		Visibility:  visibility,
		Status:      "active",
		CreatedBy:   actorID,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return store.Project{}, err
	}
	return project, nil
}

func (s *Service) ListProjects(ctx context.Context) ([]store.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *Service) GetProject(ctx context.Context, projectID string) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Project{}, notFound("PROJECT_NOT_FOUND", "Project not found")
		}
		return store.Project{}, err
	}
	return project, nil
}

// ---- resources ----

type CreateResourceInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	ProjectID   string          `json:"projectId"`
	Visibility  string          `json:"visibility"`
	Content     json.RawMessage `json:"content"`
}

func (s *Service) CreateResource(ctx context.Context, actorID string, input CreateResourceInput) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	if input.Name == "" {
		return store.Resource{}, validationError("name is required")
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = store.VisibilityPrivate
	}
	if _, ok := allowedVisibility[visibility]; !ok {
		return store.Resource{}, validationError("visibility must be one of public, team, private")
	}
	if len(input.Content) == 0 {
		return store.Resource{}, validationError("content is required")
	}
	content, err := store.NewResourceContent(input.Content)
	if err != nil {
		return store.Resource{}, validationError(err.Error())
	}
	if err := content.Validate(); err != nil {
		return store.Resource{}, validationError(err.Error())
	}

	exists, err := s.store.ProjectExists(ctx, input.ProjectID)
	if err != nil {
		return store.Resource{}, err
	}
	if !exists {
		return store.Resource{}, notFound("PROJECT_NOT_FOUND", "Project not found")
	}

	now := time.Now().UTC()
	resource := store.Resource{
		ID:          util.NewID("res"),
		Name:        input.Name,
		Description: input.Description,
		Type:        content.Type,
		ProjectID:   input.ProjectID,
		Visibility:  visibility,
		Content:     content,
		Tags:        []string{},
		CreatedBy:   actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertResource(ctx, resource); err != nil {
		return store.Resource{}, err
	}

	s.indexResource(resource)
	return resource, nil
}

// GetResource returns nil when the resource does not exist; lookups are not
// an error, unlike the id-keyed mutations.
func (s *Service) GetResource(ctx context.Context, resourceID string) (*store.Resource, error) {
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resource, nil
}

// ListResources dispatches across the project/type/tag indexes.
func (s *Service) ListResources(ctx context.Context, projectID, resourceType, tag string) ([]store.Resource, error) {
	switch {
	case tag != "":
		return s.store.ListResourcesByTag(ctx, tag, projectID)
	case resourceType != "":
		if projectID == "" {
			return nil, validationError("projectId is required when filtering by type")
		}
		return s.store.ListResourcesByType(ctx, projectID, resourceType)
	default:
		if projectID == "" {
			return nil, validationError("projectId is required")
		}
		return s.store.ListResourcesByProject(ctx, projectID)
	}
}

type UpdateResourceInput struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	Visibility  *string         `json:"visibility"`
	Content     json.RawMessage `json:"content"`
	Tags        *[]string       `json:"tags"`
	Message     string          `json:"versionMessage"`

	// forceVersion is set internally by version restores; it never comes
	// from a request body.
	forceVersion bool
}

func (s *Service) UpdateResource(ctx context.Context, actorID, resourceID string, input UpdateResourceInput) (store.Resource, bool, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, false, err
	}

	patch := store.ResourcePatch{
		Name:         input.Name,
		Description:  input.Description,
		Tags:         input.Tags,
		ForceVersion: input.forceVersion,
	}
	if input.Visibility != nil {
		if _, ok := allowedVisibility[*input.Visibility]; !ok {
			return store.Resource{}, false, validationError("visibility must be one of public, team, private")
		}
		patch.Visibility = input.Visibility
	}
	if len(input.Content) > 0 {
		content, err := store.NewResourceContent(input.Content)
		if err != nil {
			return store.Resource{}, false, validationError(err.Error())
		}
		if err := content.Validate(); err != nil {
			return store.Resource{}, false, validationError(err.Error())
		}
		patch.Content = &content
	}

	resource, versionCreated, err := s.store.UpdateResource(ctx, resourceID, util.NewID("ver"), patch, input.Message, actorID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Resource{}, false, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Resource{}, false, err
	}

	s.indexResource(resource)
	return resource, versionCreated, nil
}

func (s *Service) DeleteResource(ctx context.Context, actorID, resourceID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		if store.IsNotFound(err) {
			return notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return err
	}
	if err := s.store.DeleteResource(ctx, resourceID); err != nil {
		if store.IsNotFound(err) {
			return notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return err
	}
	if s.search != nil {
		s.search.DeleteResource(resourceID)
	}
	s.activity.Record(actorID, activity.Entry{
		Type:       "resource_deleted",
		EntityType: "resource",
		EntityID:   resourceID,
		Summary:    "deleted resource " + resource.Name,
		ProjectID:  resource.ProjectID,
	})
	return nil
}

// ShareResourceVisibility updates only the visibility and records the change
// in the activity feed.
func (s *Service) ShareResourceVisibility(ctx context.Context, actorID, resourceID, visibility string) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	if _, ok := allowedVisibility[visibility]; !ok {
		return store.Resource{}, validationError("visibility must be one of public, team, private")
	}
	current, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Resource{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Resource{}, err
	}

	resource, _, err := s.store.UpdateResource(ctx, resourceID, util.NewID("ver"), store.ResourcePatch{Visibility: &visibility}, "", actorID)
	if err != nil {
		return store.Resource{}, err
	}

	oldValue, _ := json.Marshal(current.Visibility)
	newValue, _ := json.Marshal(visibility)
	s.activity.Record(actorID, activity.Entry{
		Type:       "resource_shared",
		EntityType: "resource",
		EntityID:   resourceID,
		Summary:    "changed visibility from " + current.Visibility + " to " + visibility,
		ProjectID:  resource.ProjectID,
		Changes: []store.FieldChange{
			{Field: "visibility", OldValue: oldValue, NewValue: newValue},
		},
	})
	s.indexResource(resource)
	return resource, nil
}

func (s *Service) SearchResources(ctx context.Context, text, projectID, resourceType string, limit, offset int) search.Response {
	return s.search.Search(search.Query{
		Text:            text,
		FilterProjectID: projectID,
		FilterType:      resourceType,
		Limit:           limit,
		Offset:          offset,
	})
}

func (s *Service) indexResource(resource store.Resource) {
	if s.search == nil {
		return
	}
	s.search.IndexResource(search.ResourceRecord{
		ID:          resource.ID,
		Name:        resource.Name,
		Description: resource.Description,
		Type:        resource.Type,
		ProjectID:   resource.ProjectID,
		Visibility:  resource.Visibility,
		Tags:        resource.Tags,
	})
}

// ---- versions ----

type VersionPage struct {
	Versions []store.ResourceVersion `json:"versions"`
	Cursor   string                  `json:"cursor,omitempty"`
	IsDone   bool                    `json:"isDone"`
}

func (s *Service) ListResourceVersions(ctx context.Context, resourceID, cursorToken string, limit int) (VersionPage, error) {
	cursor, err := store.DecodeCursor(cursorToken)
	if err != nil {
		return VersionPage{}, validationError("invalid cursor")
	}
	limit = store.ClampLimit(limit)
	versions, err := s.store.ListResourceVersions(ctx, resourceID, cursor, limit)
	if err != nil {
		return VersionPage{}, err
	}
	page := VersionPage{Versions: versions, IsDone: true}
	if len(versions) > limit {
		page.Versions = versions[:limit]
		page.IsDone = false
		last := page.Versions[limit-1]
		page.Cursor = store.EncodeCursor(store.Cursor{VersionNumber: last.VersionNumber})
	}
	return page, nil
}

func (s *Service) GetResourceVersion(ctx context.Context, resourceID string, versionNumber int) (store.ResourceVersion, error) {
	version, err := s.store.GetResourceVersion(ctx, resourceID, versionNumber)
	if err != nil {
		if store.IsNotFound(err) {
			return store.ResourceVersion{}, notFound("VERSION_NOT_FOUND", "Version not found")
		}
		return store.ResourceVersion{}, err
	}
	return version, nil
}

// RestoreResourceVersion copies a past version's name, description, and
// content back onto the live resource. The restore itself lands as a fresh
// version, so history stays append-only.
func (s *Service) RestoreResourceVersion(ctx context.Context, actorID, resourceID string, versionNumber int, message string) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	version, err := s.GetResourceVersion(ctx, resourceID, versionNumber)
	if err != nil {
		return store.Resource{}, err
	}
	if message == "" {
		message = "Restored to version " + strconv.Itoa(versionNumber)
	}

	resource, _, err := s.UpdateResource(ctx, actorID, resourceID, UpdateResourceInput{
		Name:         &version.Name,
		Description:  &version.Description,
		Content:      mustMarshal(version.Content),
		Message:      message,
		forceVersion: true,
	})
	return resource, err
}

// ---- tags ----

func (s *Service) AddResourceTags(ctx context.Context, actorID, resourceID string, tags []string) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	if len(tags) == 0 {
		return store.Resource{}, validationError("tags are required")
	}
	resource, err := s.store.AddResourceTags(ctx, resourceID, tags)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Resource{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Resource{}, err
	}
	s.indexResource(resource)
	return resource, nil
}

func (s *Service) RemoveResourceTags(ctx context.Context, actorID, resourceID string, tags []string) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	if len(tags) == 0 {
		return store.Resource{}, validationError("tags are required")
	}
	resource, err := s.store.RemoveResourceTags(ctx, resourceID, tags)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Resource{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Resource{}, err
	}
	s.indexResource(resource)
	return resource, nil
}

// ---- favorites & access ----

type FavoriteWithResource struct {
	Favorite store.Favorite `json:"favorite"`
	Resource store.Resource `json:"resource"`
}

func (s *Service) AddFavorite(ctx context.Context, actorID, resourceID, notes string) (store.Favorite, error) {
	if err := requireActor(actorID); err != nil {
		return store.Favorite{}, err
	}
	favorite, err := s.store.UpsertFavorite(ctx, store.Favorite{
		ID:         util.NewID("fav"),
		ResourceID: resourceID,
		UserID:     actorID,
		Notes:      notes,
	})
	if err != nil {
		return store.Favorite{}, err
	}
	return favorite, nil
}

func (s *Service) RemoveFavorite(ctx context.Context, actorID, resourceID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	return s.store.DeleteFavorite(ctx, resourceID, actorID)
}

// ListFavorites resolves each favorite to its resource, dropping favorites
// whose resource has since been deleted.
func (s *Service) ListFavorites(ctx context.Context, actorID string) ([]FavoriteWithResource, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	favorites, err := s.store.ListFavoritesByUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	items := make([]FavoriteWithResource, 0, len(favorites))
	for _, favorite := range favorites {
		resource, err := s.store.GetResource(ctx, favorite.ResourceID)
		if err != nil {
			if store.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		items = append(items, FavoriteWithResource{Favorite: favorite, Resource: resource})
	}
	return items, nil
}

func (s *Service) RecordAccess(ctx context.Context, actorID, resourceID, accessType string) (store.Resource, error) {
	if err := requireActor(actorID); err != nil {
		return store.Resource{}, err
	}
	if _, ok := allowedAccessTypes[accessType]; !ok {
		return store.Resource{}, validationError("accessType must be one of view, edit, share, download")
	}
	resource, err := s.store.RecordAccess(ctx, store.AccessEvent{
		ID:         util.NewID("acc"),
		ResourceID: resourceID,
		UserID:     actorID,
		AccessType: accessType,
	})
	if err != nil {
		if store.IsNotFound(err) {
			return store.Resource{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Resource{}, err
	}
	return resource, nil
}

func (s *Service) ListResourceActivity(ctx context.Context, resourceID string, limit int) ([]store.Activity, error) {
	return s.store.ListActivities(ctx, resourceID, limit)
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
