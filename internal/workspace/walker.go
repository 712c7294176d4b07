package workspace

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// WalkResult is one stateless traversal of a node's direct children.
// Separate walks never share state; callers own any cross-call dedup.
type WalkResult struct {
	RootID      string       `json:"rootId"`
	Collections []Collection `json:"collections"`
	Pages       []PageRef    `json:"pages"`
	Others      int          `json:"others,omitempty"`
	Skipped     int          `json:"skipped,omitempty"`
}

// Walker lists a node's children page by page and classifies them into
// collections and nested pages.
type Walker struct {
	client Client
	log    zerolog.Logger
}

func NewWalker(client Client, log zerolog.Logger) *Walker {
	return &Walker{client: client, log: log}
}

// Walk follows continuation cursors until the upstream reports no more
// pages. Children of unknown kind are counted in Others and skipped;
// descriptors without an id are counted in Skipped. A failed listing of
// the root itself is fatal and surfaces as an error.
func (w *Walker) Walk(ctx context.Context, rootID, rootTitle string) (*WalkResult, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return nil, fmt.Errorf("%w: root id is required", ErrInvalidInput)
	}

	result := &WalkResult{RootID: rootID}
	cursor := ""
	for {
		list, err := w.client.ListChildren(ctx, rootID, cursor)
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", rootID, err)
		}

		for _, block := range list.Results {
			if strings.TrimSpace(block.ID) == "" {
				result.Skipped++
				w.log.Warn().Str("node", rootID).Msg("skipping child descriptor without id")
				continue
			}
			switch block.Kind() {
			case KindCollection:
				result.Collections = append(result.Collections, Collection{
					ID:          block.ID,
					Title:       orUntitled(block.Title()),
					ParentID:    rootID,
					ParentTitle: rootTitle,
				})
			case KindPage:
				result.Pages = append(result.Pages, PageRef{
					ID:    block.ID,
					Title: orUntitled(block.Title()),
				})
			default:
				result.Others++
			}
		}

		if !list.HasMore || list.NextCursor == nil || *list.NextCursor == "" {
			break
		}
		cursor = *list.NextCursor
	}

	w.log.Debug().
		Str("node", rootID).
		Int("collections", len(result.Collections)).
		Int("pages", len(result.Pages)).
		Int("others", result.Others).
		Int("skipped", result.Skipped).
		Msg("walked node children")
	return result, nil
}

// orUntitled backstops the placeholder-title invariant: no discovered
// node or record ever surfaces with an empty title.
func orUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}
