package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"huddle/api/internal/activity"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

// ---- comments ----

type CommentPage struct {
	Comments []store.Comment `json:"comments"`
	Cursor   string          `json:"cursor,omitempty"`
	IsDone   bool            `json:"isDone"`
}

func (s *Service) AddComment(ctx context.Context, actorID, resourceID, content, parentID string) (store.Comment, error) {
	if err := requireActor(actorID); err != nil {
		return store.Comment{}, err
	}
	if content == "" {
		return store.Comment{}, validationError("content is required")
	}
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		if store.IsNotFound(err) {
			return store.Comment{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Comment{}, err
	}

	comment := store.Comment{
		ID:         util.NewID("cmt"),
		ResourceID: resourceID,
		Content:    content,
		CreatedBy:  actorID,
		Path:       []string{},
	}
	if parentID != "" {
		parent, err := s.store.GetComment(ctx, parentID)
		if err != nil {
			if store.IsNotFound(err) {
				return store.Comment{}, notFound("PARENT_NOT_FOUND", "Parent comment not found")
			}
			return store.Comment{}, err
		}
		if parent.ResourceID != resourceID {
			return store.Comment{}, notFound("PARENT_NOT_FOUND", "Parent comment not found")
		}
		comment.ParentID = parentID
		comment.Path = append(append([]string{}, parent.Path...), parent.ID)
		comment.Depth = parent.Depth + 1
	}

	if err := s.store.InsertComment(ctx, comment); err != nil {
		return store.Comment{}, err
	}
	s.activity.Record(actorID, activity.Entry{
		Type:       "comment_added",
		EntityType: "comment",
		EntityID:   comment.ID,
		Summary:    "commented on resource " + resourceID,
	})
	return comment, nil
}

// UpdateComment rewrites the body; only the author may do this.
func (s *Service) UpdateComment(ctx context.Context, actorID, commentID, content string) (store.Comment, error) {
	if err := requireActor(actorID); err != nil {
		return store.Comment{}, err
	}
	if content == "" {
		return store.Comment{}, validationError("content is required")
	}
	current, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Comment{}, notFound("COMMENT_NOT_FOUND", "Comment not found")
		}
		return store.Comment{}, err
	}
	if current.CreatedBy != actorID {
		return store.Comment{}, domainError(http.StatusForbidden, "NOT_AUTHORIZED", "Not authorized to edit this comment", nil)
	}
	return s.store.UpdateCommentContent(ctx, commentID, content)
}

// ToggleCommentResolution flips the resolved flag. Any participant may
// resolve or reopen, not just the author.
func (s *Service) ToggleCommentResolution(ctx context.Context, actorID, commentID string) (store.Comment, error) {
	if err := requireActor(actorID); err != nil {
		return store.Comment{}, err
	}
	comment, err := s.store.ToggleCommentResolution(ctx, commentID, actorID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Comment{}, notFound("COMMENT_NOT_FOUND", "Comment not found")
		}
		return store.Comment{}, err
	}
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context, resourceID, cursorToken string, limit int) (CommentPage, error) {
	cursor, err := store.DecodeCursor(cursorToken)
	if err != nil {
		return CommentPage{}, validationError("invalid cursor")
	}
	limit = store.ClampLimit(limit)
	comments, err := s.store.ListComments(ctx, resourceID, cursor, limit)
	if err != nil {
		return CommentPage{}, err
	}
	page := CommentPage{Comments: comments, IsDone: true}
	if len(comments) > limit {
		page.Comments = comments[:limit]
		page.IsDone = false
		last := page.Comments[limit-1]
		page.Cursor = store.EncodeCursor(store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page, nil
}

// ---- shares ----

type SharePage struct {
	Shares []store.Share `json:"shares"`
	Cursor string        `json:"cursor,omitempty"`
	IsDone bool          `json:"isDone"`
}

type ShareLink struct {
	ShareID    string `json:"shareId"`
	AccessCode string `json:"accessCode"`
}

type ShareInput struct {
	Target      store.ShareTarget `json:"sharedWith"`
	Permissions []string          `json:"permissions"`
	ExpiresAt   *time.Time        `json:"expiresAt"`
}

func validatePermissions(permissions []string) error {
	if len(permissions) == 0 {
		return validationError("permissions are required")
	}
	for _, permission := range permissions {
		if _, ok := allowedPermissions[permission]; !ok {
			return validationError("permissions must be a subset of view, comment, edit, share")
		}
	}
	return nil
}

// ShareWithTarget grants a user or team access to a resource.
func (s *Service) ShareWithTarget(ctx context.Context, actorID, resourceID string, input ShareInput) (store.Share, error) {
	if err := requireActor(actorID); err != nil {
		return store.Share{}, err
	}
	if err := validatePermissions(input.Permissions); err != nil {
		return store.Share{}, err
	}
	switch input.Target.Type {
	case store.ShareTargetUser:
		if input.Target.UserID == "" {
			return store.Share{}, validationError("sharedWith.userId is required for user shares")
		}
	case store.ShareTargetTeam:
		if input.Target.TeamID == "" {
			return store.Share{}, validationError("sharedWith.teamId is required for team shares")
		}
	default:
		return store.Share{}, validationError("sharedWith.type must be user or team")
	}
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		if store.IsNotFound(err) {
			return store.Share{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.Share{}, err
	}

	share := store.Share{
		ID:          util.NewID("shr"),
		ResourceID:  resourceID,
		SharedBy:    actorID,
		SharedWith:  input.Target,
		Permissions: input.Permissions,
		ExpiresAt:   input.ExpiresAt,
	}
	if err := s.store.InsertShare(ctx, share); err != nil {
		return store.Share{}, err
	}
	s.activity.Record(actorID, activity.Entry{
		Type:       "resource_shared",
		EntityType: "share",
		EntityID:   share.ID,
		Summary:    "shared resource " + resourceID + " with " + input.Target.Type,
	})
	return share, nil
}

// CreateShareLink mints a public share with a random access code. The code is
// returned once here; list endpoints never echo it back.
func (s *Service) CreateShareLink(ctx context.Context, actorID, resourceID string, permissions []string, expiresAt *time.Time) (ShareLink, error) {
	if err := requireActor(actorID); err != nil {
		return ShareLink{}, err
	}
	if err := validatePermissions(permissions); err != nil {
		return ShareLink{}, err
	}
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		if store.IsNotFound(err) {
			return ShareLink{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return ShareLink{}, err
	}

	code := util.NewAccessCode(10)
	share := store.Share{
		ID:          util.NewID("shr"),
		ResourceID:  resourceID,
		SharedBy:    actorID,
		SharedWith:  store.ShareTarget{Type: store.ShareTargetPublic, AccessCode: code},
		Permissions: permissions,
		ExpiresAt:   expiresAt,
	}
	if err := s.store.InsertShare(ctx, share); err != nil {
		return ShareLink{}, err
	}
	return ShareLink{ShareID: share.ID, AccessCode: code}, nil
}

func (s *Service) ListShares(ctx context.Context, resourceID, cursorToken string, limit int) (SharePage, error) {
	cursor, err := store.DecodeCursor(cursorToken)
	if err != nil {
		return SharePage{}, validationError("invalid cursor")
	}
	limit = store.ClampLimit(limit)
	shares, err := s.store.ListShares(ctx, resourceID, cursor, limit)
	if err != nil {
		return SharePage{}, err
	}
	return buildSharePage(shares, limit), nil
}

func (s *Service) ListSharedWithMe(ctx context.Context, actorID, cursorToken string, limit int) (SharePage, error) {
	if err := requireActor(actorID); err != nil {
		return SharePage{}, err
	}
	cursor, err := store.DecodeCursor(cursorToken)
	if err != nil {
		return SharePage{}, validationError("invalid cursor")
	}
	limit = store.ClampLimit(limit)
	shares, err := s.store.ListSharedWithUser(ctx, actorID, cursor, limit)
	if err != nil {
		return SharePage{}, err
	}
	return buildSharePage(shares, limit), nil
}

func buildSharePage(shares []store.Share, limit int) SharePage {
	page := SharePage{Shares: shares, IsDone: true}
	if len(shares) > limit {
		page.Shares = shares[:limit]
		page.IsDone = false
		last := page.Shares[limit-1]
		page.Cursor = store.EncodeCursor(store.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return page
}

type SharedResource struct {
	Share    store.Share    `json:"share"`
	Resource store.Resource `json:"resource"`
}

// ResolveShareByCode looks up a public share link, rejects expired links, and
// bumps the share's access counters.
func (s *Service) ResolveShareByCode(ctx context.Context, code string) (SharedResource, error) {
	share, err := s.store.GetShareByCode(ctx, code)
	if err != nil {
		if store.IsNotFound(err) {
			return SharedResource{}, notFound("SHARE_NOT_FOUND", "Share link not found")
		}
		return SharedResource{}, err
	}
	if share.ExpiresAt != nil && time.Now().After(*share.ExpiresAt) {
		return SharedResource{}, domainError(http.StatusGone, "SHARE_EXPIRED", "Share link has expired", nil)
	}
	if err := s.store.RecordShareAccess(ctx, share.ID); err != nil && !store.IsNotFound(err) {
		return SharedResource{}, err
	}
	resource, err := s.store.GetResource(ctx, share.ResourceID)
	if err != nil {
		if store.IsNotFound(err) {
			return SharedResource{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return SharedResource{}, err
	}
	return SharedResource{Share: share, Resource: resource}, nil
}

// ---- collaboration sessions ----

func mapSessionError(err error) error {
	if errors.Is(err, store.ErrSessionEnded) {
		return domainError(http.StatusConflict, "SESSION_ENDED", "Session has ended", nil)
	}
	if store.IsNotFound(err) {
		return notFound("SESSION_NOT_FOUND", "Session not found")
	}
	return err
}

// StartCollabSession opens a session on a resource with the caller as the
// first participant.
func (s *Service) StartCollabSession(ctx context.Context, actorID, resourceID string) (store.CollabSession, error) {
	if err := requireActor(actorID); err != nil {
		return store.CollabSession{}, err
	}
	if _, err := s.store.GetResource(ctx, resourceID); err != nil {
		if store.IsNotFound(err) {
			return store.CollabSession{}, notFound("RESOURCE_NOT_FOUND", "Resource not found")
		}
		return store.CollabSession{}, err
	}

	session := store.CollabSession{
		ID:         util.NewID("ses"),
		ResourceID: resourceID,
		StartedBy:  actorID,
		Participants: []store.SessionParticipant{
			{UserID: actorID, JoinedAt: time.Now().UTC()},
		},
		Changes: []store.SessionChange{},
	}
	if err := s.store.InsertCollabSession(ctx, session); err != nil {
		return store.CollabSession{}, err
	}
	return session, nil
}

func (s *Service) JoinCollabSession(ctx context.Context, actorID, sessionID string) (store.CollabSession, error) {
	if err := requireActor(actorID); err != nil {
		return store.CollabSession{}, err
	}
	session, err := s.store.JoinCollabSession(ctx, sessionID, actorID)
	if err != nil {
		return store.CollabSession{}, mapSessionError(err)
	}
	return session, nil
}

// LeaveCollabSession marks the caller's participation over; the session ends
// when the last active participant leaves.
func (s *Service) LeaveCollabSession(ctx context.Context, actorID, sessionID string) (store.CollabSession, error) {
	if err := requireActor(actorID); err != nil {
		return store.CollabSession{}, err
	}
	session, err := s.store.LeaveCollabSession(ctx, sessionID, actorID)
	if err != nil {
		return store.CollabSession{}, mapSessionError(err)
	}
	return session, nil
}

func (s *Service) RecordSessionChange(ctx context.Context, actorID, sessionID, changeType string, details json.RawMessage) (store.CollabSession, error) {
	if err := requireActor(actorID); err != nil {
		return store.CollabSession{}, err
	}
	if _, ok := allowedChangeTypes[changeType]; !ok {
		return store.CollabSession{}, validationError("type must be one of edit, comment, resolve_comment")
	}
	session, err := s.store.AppendSessionChange(ctx, sessionID, store.SessionChange{
		UserID:  actorID,
		At:      time.Now().UTC(),
		Type:    changeType,
		Details: details,
	})
	if err != nil {
		return store.CollabSession{}, mapSessionError(err)
	}
	return session, nil
}

func (s *Service) GetCollabSession(ctx context.Context, sessionID string) (store.CollabSession, error) {
	session, err := s.store.GetCollabSession(ctx, sessionID)
	if err != nil {
		return store.CollabSession{}, mapSessionError(err)
	}
	return session, nil
}

func (s *Service) ListActiveSessions(ctx context.Context, resourceID string) ([]store.CollabSession, error) {
	return s.store.ListActiveSessions(ctx, resourceID)
}
