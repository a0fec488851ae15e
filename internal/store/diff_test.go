package store

import (
	"testing"
)

func strPtr(s string) *string { return &s }

func TestDiffResourceDetectsChangedFields(t *testing.T) {
	current := Resource{
		Name:       "Launch plan",
		Visibility: VisibilityPrivate,
		Type:       TypeDocument,
		Content: ResourceContent{
			Type:     TypeDocument,
			Document: &DocumentContent{Content: "v1", Format: "markdown", Version: 1},
		},
	}
	newContent := ResourceContent{
		Type:     TypeDocument,
		Document: &DocumentContent{Content: "v2", Format: "markdown", Version: 1},
	}
	changes := DiffResource(current, ResourcePatch{
		Name:    strPtr("Launch plan"),
		Content: &newContent,
	})
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d: %+v", len(changes), changes)
	}
	if changes[0].Field != "content" {
		t.Fatalf("changes[0].Field = %q, want content", changes[0].Field)
	}
	if string(changes[0].OldValue) == string(changes[0].NewValue) {
		t.Fatal("old and new content should differ")
	}
}

func TestDiffResourceEmptyForIdenticalPatch(t *testing.T) {
	current := Resource{Name: "Launch plan", Description: "Q3", Visibility: VisibilityTeam}
	changes := DiffResource(current, ResourcePatch{
		Name:        strPtr("Launch plan"),
		Description: strPtr("Q3"),
		Visibility:  strPtr(VisibilityTeam),
	})
	if len(changes) != 0 {
		t.Fatalf("expected no changes, got %+v", changes)
	}
}

func TestDiffResourceIgnoresOmittedFields(t *testing.T) {
	current := Resource{Name: "Launch plan", Description: "Q3"}
	changes := DiffResource(current, ResourcePatch{Description: strPtr("Q4")})
	if len(changes) != 1 || changes[0].Field != "description" {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestApplyPatchKeepsTypeInLockstep(t *testing.T) {
	resource := Resource{
		Type: TypeDocument,
		Content: ResourceContent{
			Type:     TypeDocument,
			Document: &DocumentContent{Content: "v1", Format: "markdown", Version: 1},
		},
	}
	newContent := ResourceContent{
		Type:        TypeCodeSnippet,
		CodeSnippet: &CodeSnippetContent{Code: "SELECT 1", Language: "sql"},
	}
	(ResourcePatch{Content: &newContent}).Apply(&resource)
	if resource.Type != TypeCodeSnippet {
		t.Fatalf("resource.Type = %q, want %q", resource.Type, TypeCodeSnippet)
	}
	if resource.Content.CodeSnippet == nil {
		t.Fatal("expected codeSnippet payload after patch")
	}
}

func TestUnionTagsDeduplicates(t *testing.T) {
	got := UnionTags([]string{"go", "infra"}, []string{"infra", "docs", "go"})
	want := []string{"go", "infra", "docs"}
	if len(got) != len(want) {
		t.Fatalf("UnionTags = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UnionTags = %v, want %v", got, want)
		}
	}
}

func TestUnionTagsIdempotent(t *testing.T) {
	once := UnionTags([]string{}, []string{"x"})
	twice := UnionTags(once, []string{"x"})
	if len(twice) != 1 || twice[0] != "x" {
		t.Fatalf("expected single x, got %v", twice)
	}
}

func TestSubtractTags(t *testing.T) {
	got := SubtractTags([]string{"go", "infra", "docs"}, []string{"infra", "missing"})
	if len(got) != 2 || got[0] != "go" || got[1] != "docs" {
		t.Fatalf("SubtractTags = %v", got)
	}
}
