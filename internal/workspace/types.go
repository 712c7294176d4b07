// Package workspace implements the discovery engine over an externally
// owned page/database tree: walking the tree, resolving record ownership,
// reading collections into normalized records, and bucketing status labels.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// APIError carries the upstream store's structured failure response.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream api error: status=%d message=%s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrInvalidInput:
		return e.StatusCode == 400
	}
	return false
}

// NodeKind classifies a child of a tree node.
type NodeKind string

const (
	KindPage       NodeKind = "page"
	KindCollection NodeKind = "collection"
	KindOther      NodeKind = "other"
)

// ChildTitle is the title payload nested under child_page / child_database
// descriptors.
type ChildTitle struct {
	Title string `json:"title"`
}

// Block is one child descriptor from a children listing.
type Block struct {
	Object        string      `json:"object"`
	ID            string      `json:"id"`
	Type          string      `json:"type"`
	HasChildren   bool        `json:"has_children"`
	ChildPage     *ChildTitle `json:"child_page,omitempty"`
	ChildDatabase *ChildTitle `json:"child_database,omitempty"`
}

// Kind maps the wire block type onto the tree taxonomy. Unknown block
// types come back as KindOther and are skipped by the walker.
func (b Block) Kind() NodeKind {
	switch b.Type {
	case "child_page":
		return KindPage
	case "child_database":
		return KindCollection
	default:
		return KindOther
	}
}

// Title returns the display title carried on page/database descriptors.
func (b Block) Title() string {
	switch {
	case b.ChildPage != nil:
		return strings.TrimSpace(b.ChildPage.Title)
	case b.ChildDatabase != nil:
		return strings.TrimSpace(b.ChildDatabase.Title)
	default:
		return ""
	}
}

// BlockList is the paginated envelope for children listings.
type BlockList struct {
	Object     string  `json:"object"`
	Results    []Block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// RichText is one fragment of a text-valued property.
type RichText struct {
	PlainText string `json:"plain_text"`
}

// SelectValue is the payload of select and status properties.
type SelectValue struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// PersonEmail carries the optional identity of a people entry.
type PersonEmail struct {
	Email string `json:"email,omitempty"`
}

// PersonRef is one entry of a people property. The nested identity is
// optional; upstream omits it for guests and bot users.
type PersonRef struct {
	ID     string       `json:"id,omitempty"`
	Name   string       `json:"name,omitempty"`
	Person *PersonEmail `json:"person,omitempty"`
}

// DateValue is the payload of a date property.
type DateValue struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Property is the tagged union used for record property bags. Type selects
// which value field is populated; all others stay zero.
type Property struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type"`
	Title    []RichText   `json:"title,omitempty"`
	RichText []RichText   `json:"rich_text,omitempty"`
	Select   *SelectValue `json:"select,omitempty"`
	Status   *SelectValue `json:"status,omitempty"`
	People   []PersonRef  `json:"people,omitempty"`
	Email    string       `json:"email,omitempty"`
	Date     *DateValue   `json:"date,omitempty"`
	Number   *float64     `json:"number,omitempty"`
	Checkbox *bool        `json:"checkbox,omitempty"`
	URL      string       `json:"url,omitempty"`
}

// PlainText flattens the text fragments of title and rich_text properties.
// Non-text properties yield "".
func (p Property) PlainText() string {
	fragments := p.Title
	if len(fragments) == 0 {
		fragments = p.RichText
	}
	if len(fragments) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, fragment := range fragments {
		sb.WriteString(fragment.PlainText)
	}
	return strings.TrimSpace(sb.String())
}

// Page is one full record of a collection (or a standalone page) with its
// open property bag.
type Page struct {
	Object         string              `json:"object"`
	ID             string              `json:"id"`
	CreatedTime    string              `json:"created_time,omitempty"`
	LastEditedTime string              `json:"last_edited_time,omitempty"`
	URL            string              `json:"url,omitempty"`
	Properties     map[string]Property `json:"properties"`
}

// PageList is the paginated envelope for collection queries.
type PageList struct {
	Object     string  `json:"object"`
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// Client is the read surface of the upstream tree/collection store. All
// listing calls are cursor-paginated; pass "" for the first page.
type Client interface {
	ListChildren(ctx context.Context, nodeID, cursor string) (*BlockList, error)
	QueryCollection(ctx context.Context, collectionID, cursor string) (*PageList, error)
	GetPage(ctx context.Context, pageID string) (*Page, error)
}

// Collection is a queryable record set discovered under a tree node.
// Discovered fresh on every traversal; never persisted here.
type Collection struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ParentID    string `json:"parentId"`
	ParentTitle string `json:"parentTitle,omitempty"`
}

// PageRef is a nested page discovered under a tree node.
type PageRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Record is the normalized shape of one collection item. Empty optional
// fields mean the source record does not carry that property.
type Record struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	CreatedAt    string           `json:"createdAt,omitempty"`
	EditedAt     string           `json:"editedAt,omitempty"`
	URL          string           `json:"url,omitempty"`
	Status       NormalizedStatus `json:"status"`
	OwnerEmail   string           `json:"ownerEmail,omitempty"`
	PeopleEmails []string         `json:"peopleEmails,omitempty"`
	Project      string           `json:"project,omitempty"`
	Due          string           `json:"due,omitempty"`
	Priority     string           `json:"priority,omitempty"`
}
