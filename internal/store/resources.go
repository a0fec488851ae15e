package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const resourceColumns = `id, name, COALESCE(description, ''), type, project_id, visibility, content, tags, access_count, last_accessed_at, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResource(row rowScanner) (Resource, error) {
	var item Resource
	var contentRaw, tagsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Description,
		&item.Type,
		&item.ProjectID,
		&item.Visibility,
		&contentRaw,
		&tagsRaw,
		&item.AccessCount,
		&item.LastAccessedAt,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Resource{}, err
	}
	content, err := NewResourceContent(contentRaw)
	if err != nil {
		return Resource{}, fmt.Errorf("decode resource content: %w", err)
	}
	item.Content = content
	if err := json.Unmarshal(tagsRaw, &item.Tags); err != nil {
		return Resource{}, fmt.Errorf("decode resource tags: %w", err)
	}
	if item.Tags == nil {
		item.Tags = []string{}
	}
	return item, nil
}

func (s *PostgresStore) InsertResource(ctx context.Context, item Resource) error {
	contentRaw, err := json.Marshal(item.Content)
	if err != nil {
		return fmt.Errorf("encode resource content: %w", err)
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsRaw, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("encode resource tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resources (id, name, description, type, project_id, visibility, content, tags, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9)
	`, item.ID, item.Name, item.Description, item.Type, item.ProjectID, item.Visibility, string(contentRaw), string(tagsRaw), item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=$1`, resourceID)
	return scanResource(row)
}

func (s *PostgresStore) listResources(ctx context.Context, query string, args ...any) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	items := make([]Resource, 0)
	for rows.Next() {
		item, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListResourcesByProject(ctx context.Context, projectID string) ([]Resource, error) {
	return s.listResources(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE project_id=$1
		ORDER BY created_at DESC
	`, projectID)
}

func (s *PostgresStore) ListResourcesByType(ctx context.Context, projectID, resourceType string) ([]Resource, error) {
	return s.listResources(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE project_id=$1 AND type=$2
		ORDER BY created_at DESC
	`, projectID, resourceType)
}

func (s *PostgresStore) ListResourcesByTag(ctx context.Context, tag, projectID string) ([]Resource, error) {
	return s.listResources(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE tags @> jsonb_build_array($1::text)
		  AND ($2='' OR project_id=$2)
		ORDER BY created_at DESC
	`, tag, projectID)
}

// UpdateResource applies a partial update in one transaction: the current row
// is locked, the field diff is computed against it, and when the patch
// carries new content and either the diff is non-empty or ForceVersion is
// set, a version row is inserted with the next version number before the
// patch lands. versionID names the version row if one gets created.
func (s *PostgresStore) UpdateResource(ctx context.Context, resourceID, versionID string, patch ResourcePatch, message, actorID string) (Resource, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Resource{}, false, fmt.Errorf("begin update tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=$1 FOR UPDATE`, resourceID)
	current, err := scanResource(row)
	if err != nil {
		return Resource{}, false, err
	}

	changes := DiffResource(current, patch)
	updated := current
	patch.Apply(&updated)
	updated.UpdatedAt = time.Now().UTC()

	versionCreated := false
	if patch.Content != nil && (len(changes) > 0 || patch.ForceVersion) {
		if err := insertVersionTx(ctx, tx, ResourceVersion{
			ID:          versionID,
			ResourceID:  resourceID,
			Name:        updated.Name,
			Description: updated.Description,
			Content:     updated.Content,
			Changes:     changes,
			Message:     message,
			CreatedBy:   actorID,
		}); err != nil {
			return Resource{}, false, err
		}
		versionCreated = true
	}

	contentRaw, err := json.Marshal(updated.Content)
	if err != nil {
		return Resource{}, false, fmt.Errorf("encode resource content: %w", err)
	}
	tagsRaw, err := json.Marshal(updated.Tags)
	if err != nil {
		return Resource{}, false, fmt.Errorf("encode resource tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE resources
		SET name=$2, description=$3, type=$4, visibility=$5, content=$6::jsonb, tags=$7::jsonb, updated_at=$8
		WHERE id=$1
	`, resourceID, updated.Name, updated.Description, updated.Type, updated.Visibility, string(contentRaw), string(tagsRaw), updated.UpdatedAt); err != nil {
		return Resource{}, false, fmt.Errorf("update resource: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Resource{}, false, fmt.Errorf("commit update tx: %w", err)
	}
	return updated, versionCreated, nil
}

func (s *PostgresStore) DeleteResource(ctx context.Context, resourceID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resources WHERE id=$1`, resourceID)
	if err != nil {
		return fmt.Errorf("delete resource: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete resource rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// mutateResourceTags locks the row, recomputes the tag set with merge, and
// writes it back in the same transaction.
func (s *PostgresStore) mutateResourceTags(ctx context.Context, resourceID string, merge func([]string) []string) (Resource, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Resource{}, fmt.Errorf("begin tags tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id=$1 FOR UPDATE`, resourceID)
	current, err := scanResource(row)
	if err != nil {
		return Resource{}, err
	}

	current.Tags = merge(current.Tags)
	current.UpdatedAt = time.Now().UTC()
	tagsRaw, err := json.Marshal(current.Tags)
	if err != nil {
		return Resource{}, fmt.Errorf("encode resource tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE resources SET tags=$2::jsonb, updated_at=$3 WHERE id=$1
	`, resourceID, string(tagsRaw), current.UpdatedAt); err != nil {
		return Resource{}, fmt.Errorf("update resource tags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Resource{}, fmt.Errorf("commit tags tx: %w", err)
	}
	return current, nil
}

func (s *PostgresStore) AddResourceTags(ctx context.Context, resourceID string, tags []string) (Resource, error) {
	return s.mutateResourceTags(ctx, resourceID, func(current []string) []string {
		return UnionTags(current, tags)
	})
}

func (s *PostgresStore) RemoveResourceTags(ctx context.Context, resourceID string, tags []string) (Resource, error) {
	return s.mutateResourceTags(ctx, resourceID, func(current []string) []string {
		return SubtractTags(current, tags)
	})
}

// ---- versions ----

func insertVersionTx(ctx context.Context, tx *sql.Tx, version ResourceVersion) error {
	contentRaw, err := json.Marshal(version.Content)
	if err != nil {
		return fmt.Errorf("encode version content: %w", err)
	}
	changes := version.Changes
	if changes == nil {
		changes = []FieldChange{}
	}
	changesRaw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode version changes: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO resource_versions (id, resource_id, version_number, name, description, content, changes, message, created_by)
		VALUES (
			$1, $2,
			(SELECT COALESCE(MAX(version_number), 0) + 1 FROM resource_versions WHERE resource_id=$2),
			$3, $4, $5::jsonb, $6::jsonb, $7, $8
		)
	`, version.ID, version.ResourceID, version.Name, version.Description, string(contentRaw), string(changesRaw), version.Message, version.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert resource version: %w", err)
	}
	return nil
}

const versionColumns = `id, resource_id, version_number, name, COALESCE(description, ''), content, changes, COALESCE(message, ''), created_by, created_at`

func scanVersion(row rowScanner) (ResourceVersion, error) {
	var item ResourceVersion
	var contentRaw, changesRaw []byte
	err := row.Scan(
		&item.ID,
		&item.ResourceID,
		&item.VersionNumber,
		&item.Name,
		&item.Description,
		&contentRaw,
		&changesRaw,
		&item.Message,
		&item.CreatedBy,
		&item.CreatedAt,
	)
	if err != nil {
		return ResourceVersion{}, err
	}
	content, err := NewResourceContent(contentRaw)
	if err != nil {
		return ResourceVersion{}, fmt.Errorf("decode version content: %w", err)
	}
	item.Content = content
	if err := json.Unmarshal(changesRaw, &item.Changes); err != nil {
		return ResourceVersion{}, fmt.Errorf("decode version changes: %w", err)
	}
	return item, nil
}

// ListResourceVersions returns a page of version history, newest first.
func (s *PostgresStore) ListResourceVersions(ctx context.Context, resourceID string, cursor Cursor, limit int) ([]ResourceVersion, error) {
	limit = ClampLimit(limit)
	before := cursor.VersionNumber
	if before <= 0 {
		before = 1 << 30
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+versionColumns+`
		FROM resource_versions
		WHERE resource_id=$1 AND version_number < $2
		ORDER BY version_number DESC
		LIMIT $3
	`, resourceID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list resource versions: %w", err)
	}
	defer rows.Close()

	items := make([]ResourceVersion, 0)
	for rows.Next() {
		item, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resource versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetResourceVersion(ctx context.Context, resourceID string, versionNumber int) (ResourceVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM resource_versions
		WHERE resource_id=$1 AND version_number=$2
	`, resourceID, versionNumber)
	return scanVersion(row)
}

// ---- favorites ----

func (s *PostgresStore) UpsertFavorite(ctx context.Context, favorite Favorite) (Favorite, error) {
	var item Favorite
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO favorites (id, resource_id, user_id, notes)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		ON CONFLICT (user_id, resource_id) DO UPDATE
		SET notes = CASE WHEN EXCLUDED.notes IS NOT NULL THEN EXCLUDED.notes ELSE favorites.notes END
		RETURNING id, resource_id, user_id, COALESCE(notes, ''), created_at
	`, favorite.ID, favorite.ResourceID, favorite.UserID, favorite.Notes).Scan(
		&item.ID,
		&item.ResourceID,
		&item.UserID,
		&item.Notes,
		&item.CreatedAt,
	)
	if err != nil {
		return Favorite{}, fmt.Errorf("upsert favorite: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeleteFavorite(ctx context.Context, resourceID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM favorites WHERE resource_id=$1 AND user_id=$2
	`, resourceID, userID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFavoritesByUser(ctx context.Context, userID string) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, resource_id, user_id, COALESCE(notes, ''), created_at
		FROM favorites
		WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	items := make([]Favorite, 0)
	for rows.Next() {
		var item Favorite
		if err := rows.Scan(&item.ID, &item.ResourceID, &item.UserID, &item.Notes, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorites: %w", err)
	}
	return items, nil
}

// ---- access events ----

// RecordAccess inserts the event and bumps the resource counter in one
// transaction so concurrent calls never lose an increment.
func (s *PostgresStore) RecordAccess(ctx context.Context, event AccessEvent) (Resource, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Resource{}, fmt.Errorf("begin access tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO access_events (id, resource_id, user_id, access_type)
		VALUES ($1, $2, $3, $4)
	`, event.ID, event.ResourceID, event.UserID, event.AccessType); err != nil {
		return Resource{}, fmt.Errorf("insert access event: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE resources
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id=$1
		RETURNING `+resourceColumns+`
	`, event.ResourceID)
	updated, err := scanResource(row)
	if err != nil {
		return Resource{}, err
	}

	if err := tx.Commit(); err != nil {
		return Resource{}, fmt.Errorf("commit access tx: %w", err)
	}
	return updated, nil
}

// ---- comments ----

const commentColumns = `id, resource_id, content, created_by, created_at, updated_at, COALESCE(parent_id, ''), is_resolved, COALESCE(resolved_by, ''), resolved_at, path, depth`

func scanComment(row rowScanner) (Comment, error) {
	var item Comment
	var pathRaw []byte
	err := row.Scan(
		&item.ID,
		&item.ResourceID,
		&item.Content,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.ParentID,
		&item.IsResolved,
		&item.ResolvedBy,
		&item.ResolvedAt,
		&pathRaw,
		&item.Depth,
	)
	if err != nil {
		return Comment{}, err
	}
	if err := json.Unmarshal(pathRaw, &item.Path); err != nil {
		return Comment{}, fmt.Errorf("decode comment path: %w", err)
	}
	if item.Path == nil {
		item.Path = []string{}
	}
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	path := comment.Path
	if path == nil {
		path = []string{}
	}
	pathRaw, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("encode comment path: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO comments (id, resource_id, content, created_by, parent_id, path, depth)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6::jsonb, $7)
	`, comment.ID, comment.ResourceID, comment.Content, comment.CreatedBy, comment.ParentID, string(pathRaw), comment.Depth)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, commentID)
	return scanComment(row)
}

func (s *PostgresStore) UpdateCommentContent(ctx context.Context, commentID, content string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE comments
		SET content=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+commentColumns+`
	`, commentID, content)
	return scanComment(row)
}

// ToggleCommentResolution flips the resolution flag in a single statement so
// concurrent toggles serialize on the row. Resolver id and timestamp are
// stamped on resolve and cleared on unresolve.
func (s *PostgresStore) ToggleCommentResolution(ctx context.Context, commentID, actorID string) (Comment, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE comments
		SET is_resolved = NOT is_resolved,
			resolved_by = CASE WHEN is_resolved THEN NULL ELSE $2 END,
			resolved_at = CASE WHEN is_resolved THEN NULL ELSE NOW() END
		WHERE id=$1
		RETURNING `+commentColumns+`
	`, commentID, actorID)
	return scanComment(row)
}

// ListComments returns a page of comments in creation order.
func (s *PostgresStore) ListComments(ctx context.Context, resourceID string, cursor Cursor, limit int) ([]Comment, error) {
	limit = ClampLimit(limit)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE resource_id=$1
		  AND (($2::timestamptz IS NULL) OR (created_at, id) > ($2, $3))
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, resourceID, nullableTime(cursor.CreatedAt), cursor.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		item, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// ---- shares ----

const shareColumns = `id, resource_id, shared_by, target_type, COALESCE(target_id, ''), COALESCE(access_code, ''), permissions, expires_at, created_at, last_accessed_at, access_count`

func scanShare(row rowScanner) (Share, error) {
	var item Share
	var targetID string
	var permsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.ResourceID,
		&item.SharedBy,
		&item.SharedWith.Type,
		&targetID,
		&item.SharedWith.AccessCode,
		&permsRaw,
		&item.ExpiresAt,
		&item.CreatedAt,
		&item.LastAccessedAt,
		&item.AccessCount,
	)
	if err != nil {
		return Share{}, err
	}
	switch item.SharedWith.Type {
	case ShareTargetUser:
		item.SharedWith.UserID = targetID
	case ShareTargetTeam:
		item.SharedWith.TeamID = targetID
	}
	if err := json.Unmarshal(permsRaw, &item.Permissions); err != nil {
		return Share{}, fmt.Errorf("decode share permissions: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertShare(ctx context.Context, share Share) error {
	permsRaw, err := json.Marshal(share.Permissions)
	if err != nil {
		return fmt.Errorf("encode share permissions: %w", err)
	}
	targetID := share.SharedWith.UserID
	if share.SharedWith.Type == ShareTargetTeam {
		targetID = share.SharedWith.TeamID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shares (id, resource_id, shared_by, target_type, target_id, access_code, permissions, expires_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7::jsonb, $8)
	`, share.ID, share.ResourceID, share.SharedBy, share.SharedWith.Type, targetID, share.SharedWith.AccessCode, string(permsRaw), share.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert share: %w", err)
	}
	return nil
}

func (s *PostgresStore) listShares(ctx context.Context, query string, args ...any) ([]Share, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]Share, 0)
	for rows.Next() {
		item, err := scanShare(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shares: %w", err)
	}
	return items, nil
}

// ListShares returns a page of shares on a resource, newest first.
func (s *PostgresStore) ListShares(ctx context.Context, resourceID string, cursor Cursor, limit int) ([]Share, error) {
	limit = ClampLimit(limit)
	return s.listShares(ctx, `
		SELECT `+shareColumns+`
		FROM shares
		WHERE resource_id=$1
		  AND (($2::timestamptz IS NULL) OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, resourceID, nullableTime(cursor.CreatedAt), cursor.ID, limit+1)
}

// ListSharedWithUser returns a page of shares targeted at the user directly
// or at a team the user owns, newest first.
func (s *PostgresStore) ListSharedWithUser(ctx context.Context, userID string, cursor Cursor, limit int) ([]Share, error) {
	limit = ClampLimit(limit)
	return s.listShares(ctx, `
		SELECT `+shareColumns+`
		FROM shares
		WHERE (
			(target_type='user' AND target_id=$1)
			OR (target_type='team' AND target_id IN (SELECT id FROM teams WHERE created_by=$1))
		)
		  AND (($2::timestamptz IS NULL) OR (created_at, id) < ($2, $3))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, userID, nullableTime(cursor.CreatedAt), cursor.ID, limit+1)
}

func (s *PostgresStore) GetShareByCode(ctx context.Context, accessCode string) (Share, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+shareColumns+`
		FROM shares
		WHERE target_type='public' AND access_code=$1
	`, accessCode)
	return scanShare(row)
}

// RecordShareAccess bumps the share's access counter and timestamp.
func (s *PostgresStore) RecordShareAccess(ctx context.Context, shareID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE shares
		SET access_count = access_count + 1, last_accessed_at = NOW()
		WHERE id=$1
	`, shareID)
	if err != nil {
		return fmt.Errorf("record share access: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record share access rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
