package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// DocumentContent is the payload for type "document".
type DocumentContent struct {
	Content string `json:"content"`
	Format  string `json:"format"`
	Version int    `json:"version"`
}

// CodeSnippetContent is the payload for type "codeSnippet".
type CodeSnippetContent struct {
	Code             string          `json:"code"`
	Language         string          `json:"language"`
	HighlightOptions json.RawMessage `json:"highlightOptions,omitempty"`
}

// ExternalLinkContent is the payload for type "externalLink".
type ExternalLinkContent struct {
	URL         string     `json:"url"`
	Favicon     string     `json:"favicon,omitempty"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// FeedContent is the payload for type "feed". RefreshFrequency is minutes.
type FeedContent struct {
	Source           string     `json:"source"`
	RefreshFrequency int        `json:"refreshFrequency"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// GitHubContent is the payload for type "github".
type GitHubContent struct {
	URL              string     `json:"url"`
	RefreshFrequency int        `json:"refreshFrequency"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// ResourceContent is the tagged content union. Exactly one variant pointer is
// non-nil and it must match Type. On the wire and in the database it is a
// single flat object: {"type": "document", "content": "...", ...}.
type ResourceContent struct {
	Type         string
	Document     *DocumentContent
	CodeSnippet  *CodeSnippetContent
	ExternalLink *ExternalLinkContent
	Feed         *FeedContent
	GitHub       *GitHubContent
}

// NewResourceContent decodes a raw JSON payload into the union, keyed by its
// embedded "type" tag.
func NewResourceContent(raw json.RawMessage) (ResourceContent, error) {
	var content ResourceContent
	if err := content.UnmarshalJSON(raw); err != nil {
		return ResourceContent{}, err
	}
	return content, nil
}

// IsZero reports whether no variant has been set.
func (c ResourceContent) IsZero() bool {
	return c.Type == "" && c.Document == nil && c.CodeSnippet == nil &&
		c.ExternalLink == nil && c.Feed == nil && c.GitHub == nil
}

// Validate checks that exactly one variant is set and that it agrees with the
// discriminant.
func (c ResourceContent) Validate() error {
	variants := 0
	var variantType string
	if c.Document != nil {
		variants++
		variantType = TypeDocument
	}
	if c.CodeSnippet != nil {
		variants++
		variantType = TypeCodeSnippet
	}
	if c.ExternalLink != nil {
		variants++
		variantType = TypeExternalLink
	}
	if c.Feed != nil {
		variants++
		variantType = TypeFeed
	}
	if c.GitHub != nil {
		variants++
		variantType = TypeGitHub
	}
	if variants == 0 {
		return fmt.Errorf("content payload is required")
	}
	if variants > 1 {
		return fmt.Errorf("content must carry exactly one payload")
	}
	if c.Type != variantType {
		return fmt.Errorf("content type %q does not match payload type %q", c.Type, variantType)
	}
	return nil
}

type documentEnvelope struct {
	Type string `json:"type"`
	DocumentContent
}

type codeSnippetEnvelope struct {
	Type string `json:"type"`
	CodeSnippetContent
}

type externalLinkEnvelope struct {
	Type string `json:"type"`
	ExternalLinkContent
}

type feedEnvelope struct {
	Type string `json:"type"`
	FeedContent
}

type githubEnvelope struct {
	Type string `json:"type"`
	GitHubContent
}

// MarshalJSON flattens the active variant into a single object carrying the
// type tag.
func (c ResourceContent) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case TypeDocument:
		if c.Document == nil {
			return nil, fmt.Errorf("document content missing payload")
		}
		return json.Marshal(documentEnvelope{Type: c.Type, DocumentContent: *c.Document})
	case TypeCodeSnippet:
		if c.CodeSnippet == nil {
			return nil, fmt.Errorf("codeSnippet content missing payload")
		}
		return json.Marshal(codeSnippetEnvelope{Type: c.Type, CodeSnippetContent: *c.CodeSnippet})
	case TypeExternalLink:
		if c.ExternalLink == nil {
			return nil, fmt.Errorf("externalLink content missing payload")
		}
		return json.Marshal(externalLinkEnvelope{Type: c.Type, ExternalLinkContent: *c.ExternalLink})
	case TypeFeed:
		if c.Feed == nil {
			return nil, fmt.Errorf("feed content missing payload")
		}
		return json.Marshal(feedEnvelope{Type: c.Type, FeedContent: *c.Feed})
	case TypeGitHub:
		if c.GitHub == nil {
			return nil, fmt.Errorf("github content missing payload")
		}
		return json.Marshal(githubEnvelope{Type: c.Type, GitHubContent: *c.GitHub})
	case "":
		return []byte("null"), nil
	default:
		return nil, fmt.Errorf("unknown content type %q", c.Type)
	}
}

// UnmarshalJSON decodes the flat tagged object into the matching variant.
func (c *ResourceContent) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode content: %w", err)
	}

	*c = ResourceContent{Type: probe.Type}
	switch probe.Type {
	case TypeDocument:
		var payload DocumentContent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode document content: %w", err)
		}
		c.Document = &payload
	case TypeCodeSnippet:
		var payload CodeSnippetContent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode codeSnippet content: %w", err)
		}
		c.CodeSnippet = &payload
	case TypeExternalLink:
		var payload ExternalLinkContent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode externalLink content: %w", err)
		}
		c.ExternalLink = &payload
	case TypeFeed:
		var payload FeedContent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode feed content: %w", err)
		}
		c.Feed = &payload
	case TypeGitHub:
		var payload GitHubContent
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode github content: %w", err)
		}
		c.GitHub = &payload
	case "":
		return fmt.Errorf("content is missing a type tag")
	default:
		return fmt.Errorf("unknown content type %q", probe.Type)
	}
	return nil
}
