package workspace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// CollectionMatch is a collection with at least one record owned by the
// requesting user.
type CollectionMatch struct {
	Collection
	MatchCount int `json:"matchCount"`
}

// DiscoveryTotals are the administrative aggregates of one discovery run.
// All counts are distinct by identity.
type DiscoveryTotals struct {
	Collections int `json:"collections"`
	Records     int `json:"records"`
	Users       int `json:"users"`
}

// DiscoveryResult is the per-user view produced by one Discover call.
// Partial failures reduce the result instead of failing the call;
// SkippedPages counts nested pages whose detail fetch failed.
type DiscoveryResult struct {
	RootID           string            `json:"rootId"`
	UserEmail        string            `json:"userEmail,omitempty"`
	OwnedPages       []PageRef         `json:"ownedPages"`
	OwnedCollections []CollectionMatch `json:"ownedCollections"`
	AllCollections   []Collection      `json:"allCollections"`
	Totals           DiscoveryTotals   `json:"totals"`
	SkippedPages     int               `json:"skippedPages,omitempty"`
}

type DiscovererOptions struct {
	Client      Client
	Concurrency int
	Log         zerolog.Logger
}

// Discoverer composes the walker, reader and ownership rules into the
// request-scoped workspace discovery operation.
type Discoverer struct {
	client      Client
	walker      *Walker
	reader      *Reader
	concurrency int
	log         zerolog.Logger
}

func NewDiscoverer(opts DiscovererOptions) *Discoverer {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Discoverer{
		client:      opts.Client,
		walker:      NewWalker(opts.Client, opts.Log),
		reader:      NewReader(opts.Client, opts.Log),
		concurrency: concurrency,
		log:         opts.Log,
	}
}

// Discover walks the root's children, reads every discovered collection,
// and attributes pages and collection records to userEmail. Sibling pages
// and collections are processed concurrently behind a bounded semaphore;
// nodes already seen in this call are not visited twice. Only a failure
// to list the root's children fails the call.
func (d *Discoverer) Discover(ctx context.Context, rootID, userEmail string) (*DiscoveryResult, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return nil, fmt.Errorf("%w: root id is required", ErrInvalidInput)
	}
	userEmail = strings.TrimSpace(userEmail)

	rootWalk, err := d.walker.Walk(ctx, rootID, d.nodeTitle(ctx, rootID))
	if err != nil {
		return nil, err
	}

	agg := newAggregator(rootID, userEmail)
	agg.visit(rootID)

	sem := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for _, col := range rootWalk.Collections {
		wg.Add(1)
		go func(col Collection) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			d.processCollection(ctx, col, userEmail, agg)
		}(col)
	}
	for _, page := range rootWalk.Pages {
		wg.Add(1)
		go func(page PageRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			d.processPage(ctx, page, userEmail, agg)
		}(page)
	}
	wg.Wait()

	result := agg.result()
	d.log.Info().
		Str("root", rootID).
		Str("user", userEmail).
		Int("ownedPages", len(result.OwnedPages)).
		Int("ownedCollections", len(result.OwnedCollections)).
		Int("allCollections", len(result.AllCollections)).
		Int("records", result.Totals.Records).
		Int("skippedPages", result.SkippedPages).
		Msg("workspace discovery finished")
	return result, nil
}

// nodeTitle resolves the root's own display title, best-effort. Roots
// that are not retrievable pages fall back to a fixed label.
func (d *Discoverer) nodeTitle(ctx context.Context, nodeID string) string {
	page, err := d.client.GetPage(ctx, nodeID)
	if err != nil {
		return "Workspace"
	}
	return titleOf(page.Properties)
}

// processCollection reads one collection once and feeds both the per-user
// match bookkeeping and the administrative totals from the same result.
func (d *Discoverer) processCollection(ctx context.Context, col Collection, userEmail string, agg *aggregator) {
	if !agg.visit(col.ID) {
		return
	}

	pages := d.reader.queryAll(ctx, col.ID)
	matchCount := 0
	for i := range pages {
		record := mapPage(&pages[i])
		agg.recordSeen(record.ID)
		if record.OwnerEmail != "" {
			agg.userSeen(record.OwnerEmail)
		}
		for _, email := range record.PeopleEmails {
			agg.userSeen(email)
		}
		if BelongsToUser(&pages[i], userEmail) {
			matchCount++
		}
	}
	agg.addCollection(col, matchCount)
}

// processPage handles one nested page: ownership of the page itself, then
// one level of its own children. Page-level failures are non-fatal.
func (d *Discoverer) processPage(ctx context.Context, ref PageRef, userEmail string, agg *aggregator) {
	if !agg.visit(ref.ID) {
		return
	}

	page, err := d.client.GetPage(ctx, ref.ID)
	if err != nil {
		agg.skipPage()
		d.log.Warn().Err(err).Str("page", ref.ID).Msg("skipping page, detail fetch failed")
		return
	}
	if owner := directOwnerEmail(page.Properties); owner != "" {
		agg.userSeen(owner)
	}
	for _, email := range peopleEmails(page.Properties) {
		agg.userSeen(email)
	}
	if BelongsToUser(page, userEmail) {
		agg.addOwnedPage(ref)
	}

	childWalk, err := d.walker.Walk(ctx, ref.ID, ref.Title)
	if err != nil {
		d.log.Warn().Err(err).Str("page", ref.ID).Msg("skipping page children, listing failed")
		return
	}
	for _, col := range childWalk.Collections {
		d.processCollection(ctx, col, userEmail, agg)
	}
}

// aggregator is the mutex-guarded shared state of one Discover call.
type aggregator struct {
	mu               sync.Mutex
	rootID           string
	userEmail        string
	visited          map[string]bool
	ownedPages       []PageRef
	ownedCollections []CollectionMatch
	allCollections   []Collection
	recordIDs        map[string]bool
	userIDs          map[string]bool
	skippedPages     int
}

func newAggregator(rootID, userEmail string) *aggregator {
	return &aggregator{
		rootID:    rootID,
		userEmail: userEmail,
		visited:   map[string]bool{},
		recordIDs: map[string]bool{},
		userIDs:   map[string]bool{},
	}
}

// visit marks a node id as processed in this call, reporting whether it
// was new. Repeat sightings keep traversal cycle-safe.
func (a *aggregator) visit(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visited[id] {
		return false
	}
	a.visited[id] = true
	return true
}

func (a *aggregator) addCollection(col Collection, matchCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allCollections = append(a.allCollections, col)
	if matchCount > 0 {
		a.ownedCollections = append(a.ownedCollections, CollectionMatch{Collection: col, MatchCount: matchCount})
	}
}

func (a *aggregator) addOwnedPage(ref PageRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ownedPages = append(a.ownedPages, ref)
}

func (a *aggregator) recordSeen(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recordIDs[id] = true
}

func (a *aggregator) userSeen(email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userIDs[email] = true
}

func (a *aggregator) skipPage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skippedPages++
}

// result assembles the final shape. Slices are sorted so concurrent
// processing order never leaks into the response.
func (a *aggregator) result() *DiscoveryResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	sort.Slice(a.ownedPages, func(i, j int) bool {
		if a.ownedPages[i].Title != a.ownedPages[j].Title {
			return a.ownedPages[i].Title < a.ownedPages[j].Title
		}
		return a.ownedPages[i].ID < a.ownedPages[j].ID
	})
	sort.Slice(a.ownedCollections, func(i, j int) bool {
		if a.ownedCollections[i].Title != a.ownedCollections[j].Title {
			return a.ownedCollections[i].Title < a.ownedCollections[j].Title
		}
		return a.ownedCollections[i].ID < a.ownedCollections[j].ID
	})
	sort.Slice(a.allCollections, func(i, j int) bool {
		if a.allCollections[i].Title != a.allCollections[j].Title {
			return a.allCollections[i].Title < a.allCollections[j].Title
		}
		return a.allCollections[i].ID < a.allCollections[j].ID
	})

	return &DiscoveryResult{
		RootID:           a.rootID,
		UserEmail:        a.userEmail,
		OwnedPages:       a.ownedPages,
		OwnedCollections: a.ownedCollections,
		AllCollections:   a.allCollections,
		Totals: DiscoveryTotals{
			Collections: len(a.allCollections),
			Records:     len(a.recordIDs),
			Users:       len(a.userIDs),
		},
		SkippedPages: a.skippedPages,
	}
}
