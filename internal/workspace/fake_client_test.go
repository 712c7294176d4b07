package workspace

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// fakeClient serves canned tree and collection data with numeric-offset
// cursors. pageSize 0 disables pagination (everything in one response).
type fakeClient struct {
	mu                sync.Mutex
	children          map[string][]Block
	pagesByCollection map[string][]Page
	pageDetails       map[string]*Page
	pageSize          int

	failChildren   map[string]bool
	failQuery      map[string]bool
	failQueryCont  map[string]bool
	failPageDetail map[string]bool

	listCalls  int
	queryCalls int
	pageCalls  int
}

func (f *fakeClient) ListChildren(_ context.Context, nodeID, cursor string) (*BlockList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failChildren[nodeID] {
		return nil, fmt.Errorf("simulated listing failure for %s", nodeID)
	}
	blocks := f.children[nodeID]
	window, hasMore, next := sliceWindow(len(blocks), cursor, f.pageSize)
	return &BlockList{
		Object:     "list",
		Results:    blocks[window[0]:window[1]],
		HasMore:    hasMore,
		NextCursor: next,
	}, nil
}

func (f *fakeClient) QueryCollection(_ context.Context, collectionID, cursor string) (*PageList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.failQuery[collectionID] {
		return nil, fmt.Errorf("simulated query failure for %s", collectionID)
	}
	if cursor != "" && f.failQueryCont[collectionID] {
		return nil, fmt.Errorf("simulated continuation failure for %s", collectionID)
	}
	pages := f.pagesByCollection[collectionID]
	window, hasMore, next := sliceWindow(len(pages), cursor, f.pageSize)
	return &PageList{
		Object:     "list",
		Results:    pages[window[0]:window[1]],
		HasMore:    hasMore,
		NextCursor: next,
	}, nil
}

func (f *fakeClient) GetPage(_ context.Context, pageID string) (*Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageCalls++
	if f.failPageDetail[pageID] {
		return nil, fmt.Errorf("simulated detail failure for %s", pageID)
	}
	page, ok := f.pageDetails[pageID]
	if !ok {
		return nil, &APIError{StatusCode: 404, Code: "object_not_found", Message: "page " + pageID}
	}
	return page, nil
}

func sliceWindow(total int, cursor string, pageSize int) (bounds [2]int, hasMore bool, next *string) {
	start := 0
	if cursor != "" {
		start, _ = strconv.Atoi(cursor)
	}
	if start > total {
		start = total
	}
	if pageSize <= 0 {
		return [2]int{start, total}, false, nil
	}
	end := start + pageSize
	if end >= total {
		return [2]int{start, total}, false, nil
	}
	cursorValue := strconv.Itoa(end)
	return [2]int{start, end}, true, &cursorValue
}

func pageBlock(id, title string) Block {
	return Block{Object: "block", ID: id, Type: "child_page", HasChildren: true, ChildPage: &ChildTitle{Title: title}}
}

func collectionBlock(id, title string) Block {
	return Block{Object: "block", ID: id, Type: "child_database", ChildDatabase: &ChildTitle{Title: title}}
}

func titleProp(text string) Property {
	return Property{Type: "title", Title: []RichText{{PlainText: text}}}
}

func richTextProp(text string) Property {
	return Property{Type: "rich_text", RichText: []RichText{{PlainText: text}}}
}

func selectProp(name, color string) Property {
	return Property{Type: "select", Select: &SelectValue{Name: name, Color: color}}
}

func statusProp(name, color string) Property {
	return Property{Type: "status", Status: &SelectValue{Name: name, Color: color}}
}

func emailProp(email string) Property {
	return Property{Type: "email", Email: email}
}

func peopleProp(emails ...string) Property {
	prop := Property{Type: "people"}
	for i, email := range emails {
		ref := PersonRef{ID: fmt.Sprintf("usr_%d", i+1)}
		if email != "" {
			ref.Person = &PersonEmail{Email: email}
		}
		prop.People = append(prop.People, ref)
	}
	return prop
}

func dateProp(start string) Property {
	return Property{Type: "date", Date: &DateValue{Start: start}}
}

// taskPage builds a record page with a title and a status, plus any extra
// properties keyed by name. An empty status leaves the property out.
func taskPage(id, title, status string, extra map[string]Property) Page {
	props := map[string]Property{
		"Name": titleProp(title),
	}
	if status != "" {
		props["Status"] = statusProp(status, "blue")
	}
	for name, prop := range extra {
		props[name] = prop
	}
	return Page{
		Object:         "page",
		ID:             id,
		CreatedTime:    "2024-03-01T10:00:00.000Z",
		LastEditedTime: "2024-03-02T11:30:00.000Z",
		URL:            "https://workspace.test/" + id,
		Properties:     props,
	}
}
