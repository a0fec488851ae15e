package store

import (
	"bytes"
	"encoding/json"
)

// ResourcePatch is a partial update to a resource. Nil fields are left
// untouched.
type ResourcePatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Visibility  *string          `json:"visibility,omitempty"`
	Content     *ResourceContent `json:"content,omitempty"`
	Tags        *[]string        `json:"tags,omitempty"`

	// ForceVersion snapshots a version even when the patch leaves the
	// resource unchanged. Version restores set this so every restore lands
	// in the history, including a restore to the current state.
	ForceVersion bool `json:"-"`
}

// DiffResource compares a resource against a patch and returns one change per
// field whose new value differs from the current one, by JSON equality. The
// result order is fixed so version history reads consistently.
func DiffResource(current Resource, patch ResourcePatch) []FieldChange {
	changes := make([]FieldChange, 0, 5)

	if patch.Name != nil {
		if change, ok := fieldChange("name", current.Name, *patch.Name); ok {
			changes = append(changes, change)
		}
	}
	if patch.Description != nil {
		if change, ok := fieldChange("description", current.Description, *patch.Description); ok {
			changes = append(changes, change)
		}
	}
	if patch.Visibility != nil {
		if change, ok := fieldChange("visibility", current.Visibility, *patch.Visibility); ok {
			changes = append(changes, change)
		}
	}
	if patch.Content != nil {
		if change, ok := fieldChange("content", current.Content, *patch.Content); ok {
			changes = append(changes, change)
		}
	}
	if patch.Tags != nil {
		currentTags := current.Tags
		if currentTags == nil {
			currentTags = []string{}
		}
		if change, ok := fieldChange("tags", currentTags, *patch.Tags); ok {
			changes = append(changes, change)
		}
	}
	return changes
}

func fieldChange(field string, oldValue, newValue any) (FieldChange, bool) {
	oldJSON, err := json.Marshal(oldValue)
	if err != nil {
		return FieldChange{}, false
	}
	newJSON, err := json.Marshal(newValue)
	if err != nil {
		return FieldChange{}, false
	}
	if bytes.Equal(oldJSON, newJSON) {
		return FieldChange{}, false
	}
	return FieldChange{Field: field, OldValue: oldJSON, NewValue: newJSON}, true
}

// Apply merges the patch onto the resource in place.
func (p ResourcePatch) Apply(resource *Resource) {
	if p.Name != nil {
		resource.Name = *p.Name
	}
	if p.Description != nil {
		resource.Description = *p.Description
	}
	if p.Visibility != nil {
		resource.Visibility = *p.Visibility
	}
	if p.Content != nil {
		resource.Content = *p.Content
		resource.Type = p.Content.Type
	}
	if p.Tags != nil {
		resource.Tags = *p.Tags
	}
}

// UnionTags appends the new tags that are not already present, preserving
// existing order first and input order for the additions.
func UnionTags(current, incoming []string) []string {
	seen := make(map[string]struct{}, len(current)+len(incoming))
	merged := make([]string, 0, len(current)+len(incoming))
	for _, tag := range current {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	for _, tag := range incoming {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		merged = append(merged, tag)
	}
	return merged
}

// SubtractTags removes every tag in remove from current, preserving order.
// Removing a tag that is not present is a no-op.
func SubtractTags(current, remove []string) []string {
	drop := make(map[string]struct{}, len(remove))
	for _, tag := range remove {
		drop[tag] = struct{}{}
	}
	kept := make([]string, 0, len(current))
	for _, tag := range current {
		if _, ok := drop[tag]; ok {
			continue
		}
		kept = append(kept, tag)
	}
	return kept
}
