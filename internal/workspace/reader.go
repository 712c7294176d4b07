package workspace

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Property names tried, in order, when resolving a record's display title
// and its project label.
var (
	titleFieldCandidates = []string{"Name", "Title", "Task"}
	dueFieldCandidates   = []string{"Due Date", "Due", "Deadline"}
)

// Reader queries a collection into normalized records.
//
// Query failures anywhere in the pagination collapse to an empty result
// with a warning log: callers treat "currently empty" and "currently
// unreadable" as the same condition.
type Reader struct {
	client Client
	log    zerolog.Logger
}

func NewReader(client Client, log zerolog.Logger) *Reader {
	return &Reader{client: client, log: log}
}

// ReadAll returns every record of the collection, unfiltered. Used for
// administrative and monitoring views.
func (r *Reader) ReadAll(ctx context.Context, collectionID string) []Record {
	pages := r.queryAll(ctx, collectionID)
	records := make([]Record, 0, len(pages))
	for i := range pages {
		records = append(records, mapPage(&pages[i]))
	}
	return records
}

// ReadFiltered returns the records of the collection that belong to
// userEmail per the ownership rules.
func (r *Reader) ReadFiltered(ctx context.Context, collectionID, userEmail string) []Record {
	pages := r.queryAll(ctx, collectionID)
	var records []Record
	for i := range pages {
		if !BelongsToUser(&pages[i], userEmail) {
			continue
		}
		records = append(records, mapPage(&pages[i]))
	}
	return records
}

func (r *Reader) queryAll(ctx context.Context, collectionID string) []Page {
	var pages []Page
	cursor := ""
	for {
		list, err := r.client.QueryCollection(ctx, collectionID, cursor)
		if err != nil {
			r.log.Warn().Err(err).Str("collection", collectionID).Msg("collection query failed, treating as empty")
			return nil
		}
		pages = append(pages, list.Results...)
		if !list.HasMore || list.NextCursor == nil || *list.NextCursor == "" {
			break
		}
		cursor = *list.NextCursor
	}
	return pages
}

// mapPage flattens a raw page into the normalized record shape.
func mapPage(page *Page) Record {
	statusLabel, statusColor := statusOf(page.Properties)
	return Record{
		ID:           page.ID,
		Title:        titleOf(page.Properties),
		CreatedAt:    page.CreatedTime,
		EditedAt:     page.LastEditedTime,
		URL:          page.URL,
		Status:       Normalize(statusLabel, statusColor),
		OwnerEmail:   directOwnerEmail(page.Properties),
		PeopleEmails: peopleEmails(page.Properties),
		Project:      projectOf(page.Properties),
		Due:          dueOf(page.Properties),
		Priority:     priorityOf(page.Properties),
	}
}

// titleOf resolves the display title through the ordered fallback chain:
// a title-type property under a candidate name, any title-type property,
// a "Name"/"Title" rich_text, and finally the literal placeholder.
func titleOf(props map[string]Property) string {
	names := sortedPropertyNames(props)

	for _, candidate := range titleFieldCandidates {
		for _, name := range names {
			prop := props[name]
			if prop.Type != "title" || !strings.EqualFold(strings.TrimSpace(name), candidate) {
				continue
			}
			if v := prop.PlainText(); v != "" {
				return v
			}
		}
	}
	for _, name := range names {
		prop := props[name]
		if prop.Type != "title" {
			continue
		}
		if v := prop.PlainText(); v != "" {
			return v
		}
	}
	for _, candidate := range []string{"Name", "Title"} {
		for _, name := range names {
			prop := props[name]
			if prop.Type != "rich_text" || !strings.EqualFold(strings.TrimSpace(name), candidate) {
				continue
			}
			if v := prop.PlainText(); v != "" {
				return v
			}
		}
	}
	return "Untitled"
}

// statusOf picks the record's status value: the first status-type
// property, else a select named "Status". Records without either yield
// the empty label, which normalizes into the default bucket.
func statusOf(props map[string]Property) (label, color string) {
	names := sortedPropertyNames(props)
	for _, name := range names {
		prop := props[name]
		if prop.Type == "status" && prop.Status != nil {
			return strings.TrimSpace(prop.Status.Name), prop.Status.Color
		}
	}
	for _, name := range names {
		prop := props[name]
		if prop.Type == "select" && prop.Select != nil && strings.EqualFold(strings.TrimSpace(name), "Status") {
			return strings.TrimSpace(prop.Select.Name), prop.Select.Color
		}
	}
	return "", ""
}

func projectOf(props map[string]Property) string {
	for _, name := range sortedPropertyNames(props) {
		prop := props[name]
		if !strings.EqualFold(strings.TrimSpace(name), "Project") {
			continue
		}
		switch prop.Type {
		case "select":
			if prop.Select != nil {
				if v := strings.TrimSpace(prop.Select.Name); v != "" {
					return v
				}
			}
		case "rich_text":
			if v := prop.PlainText(); v != "" {
				return v
			}
		}
	}
	return ""
}

func dueOf(props map[string]Property) string {
	names := sortedPropertyNames(props)
	for _, candidate := range dueFieldCandidates {
		for _, name := range names {
			prop := props[name]
			if prop.Type != "date" || prop.Date == nil {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(name), candidate) {
				return prop.Date.Start
			}
		}
	}
	return ""
}

func priorityOf(props map[string]Property) string {
	for _, name := range sortedPropertyNames(props) {
		prop := props[name]
		if prop.Type == "select" && prop.Select != nil && strings.EqualFold(strings.TrimSpace(name), "Priority") {
			return strings.TrimSpace(prop.Select.Name)
		}
	}
	return ""
}
