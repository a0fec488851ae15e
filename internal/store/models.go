package store

import (
	"encoding/json"
	"time"
)

// User is an account that can own and collaborate on resources.
type User struct {
	ID           string     `json:"id"`
	DisplayName  string     `json:"displayName"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	AvatarURL    string     `json:"avatarUrl,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
}

// Team groups users around a set of projects.
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Project is the container every resource belongs to.
type Project struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"teamId,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Visibility  string     `json:"visibility"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// Resource type discriminants. The enumeration is open for callers, but the
// known variants get shape validation.
const (
	TypeDocument     = "document"
	TypeCodeSnippet  = "codeSnippet"
	TypeExternalLink = "externalLink"
	TypeFeed         = "feed"
	TypeGitHub       = "github"
)

// Resource visibility levels.
const (
	VisibilityPublic  = "public"
	VisibilityTeam    = "team"
	VisibilityPrivate = "private"
)

// Resource is the central entity: a typed piece of project content.
type Resource struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Type           string          `json:"type"`
	ProjectID      string          `json:"projectId"`
	Visibility     string          `json:"visibility"`
	Content        ResourceContent `json:"content"`
	Tags           []string        `json:"tags"`
	AccessCount    int             `json:"accessCount"`
	LastAccessedAt *time.Time      `json:"lastAccessedAt,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// FieldChange records one field-level difference between two resource states.
// Values are kept opaque so the history view can render any field shape.
type FieldChange struct {
	Field    string          `json:"field"`
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// ResourceVersion is an immutable snapshot taken on content-changing updates.
// Name and description are captured alongside content so a restore can bring
// the whole visible state back, not just the payload.
type ResourceVersion struct {
	ID            string          `json:"id"`
	ResourceID    string          `json:"resourceId"`
	VersionNumber int             `json:"versionNumber"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Content       ResourceContent `json:"content"`
	Changes       []FieldChange   `json:"changes"`
	Message       string          `json:"message,omitempty"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Favorite marks a resource as pinned by a user. One row per (user, resource).
type Favorite struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	UserID     string    `json:"userId"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Access event types.
const (
	AccessView     = "view"
	AccessEdit     = "edit"
	AccessShare    = "share"
	AccessDownload = "download"
)

// AccessEvent is an append-only log entry; inserting one also bumps the
// resource's accessCount and lastAccessedAt in the same transaction.
type AccessEvent struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resourceId"`
	UserID     string    `json:"userId"`
	AccessType string    `json:"accessType"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Comment is a threaded discussion entry. Path holds the ancestor chain from
// root to immediate parent; depth always equals len(path).
type Comment struct {
	ID         string     `json:"id"`
	ResourceID string     `json:"resourceId"`
	Content    string     `json:"content"`
	CreatedBy  string     `json:"createdBy"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	ParentID   string     `json:"parentCommentId,omitempty"`
	IsResolved bool       `json:"isResolved"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	Path       []string   `json:"path"`
	Depth      int        `json:"depth"`
}

// Share target discriminants.
const (
	ShareTargetUser   = "user"
	ShareTargetTeam   = "team"
	ShareTargetPublic = "public"
)

// Share permissions.
const (
	PermissionView    = "view"
	PermissionComment = "comment"
	PermissionEdit    = "edit"
	PermissionShare   = "share"
)

// ShareTarget identifies who a share grants access to. Exactly one of
// UserID, TeamID, or AccessCode is set, matching Type.
type ShareTarget struct {
	Type       string `json:"type"`
	UserID     string `json:"userId,omitempty"`
	TeamID     string `json:"teamId,omitempty"`
	AccessCode string `json:"accessCode,omitempty"`
}

// Share grants a permission set on a resource to a user, a team, or anyone
// holding the public access code.
type Share struct {
	ID             string      `json:"id"`
	ResourceID     string      `json:"resourceId"`
	SharedBy       string      `json:"sharedBy"`
	SharedWith     ShareTarget `json:"sharedWith"`
	Permissions    []string    `json:"permissions"`
	ExpiresAt      *time.Time  `json:"expiresAt,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
	LastAccessedAt *time.Time  `json:"lastAccessedAt,omitempty"`
	AccessCount    int         `json:"accessCount"`
}

// SessionParticipant tracks one user's presence inside a collaboration
// session. A nil LeftAt means the participant is still active.
type SessionParticipant struct {
	UserID   string     `json:"userId"`
	JoinedAt time.Time  `json:"joinedAt"`
	LeftAt   *time.Time `json:"leftAt,omitempty"`
}

// Session change types.
const (
	ChangeEdit           = "edit"
	ChangeComment        = "comment"
	ChangeResolveComment = "resolve_comment"
)

// SessionChange is one entry in a session's append-only activity log.
type SessionChange struct {
	UserID  string          `json:"userId"`
	At      time.Time       `json:"timestamp"`
	Type    string          `json:"type"`
	Details json.RawMessage `json:"details,omitempty"`
}

// CollabSession is the presence tracker for concurrent editing awareness.
// Active iff EndedAt is nil.
type CollabSession struct {
	ID           string               `json:"id"`
	ResourceID   string               `json:"resourceId"`
	StartedBy    string               `json:"startedBy"`
	StartedAt    time.Time            `json:"startedAt"`
	EndedAt      *time.Time           `json:"endedAt,omitempty"`
	Participants []SessionParticipant `json:"participants"`
	Changes      []SessionChange      `json:"changes"`
}

// Activity is a feed entry describing something that happened to an entity.
type Activity struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	EntityType  string          `json:"entityType"`
	EntityID    string          `json:"entityId"`
	Summary     string          `json:"summary"`
	Changes     json.RawMessage `json:"changes,omitempty"`
	ProjectID   string          `json:"projectId,omitempty"`
	PerformedBy string          `json:"performedBy"`
	PerformedAt time.Time       `json:"performedAt"`
}
