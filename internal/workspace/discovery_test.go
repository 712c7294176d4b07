package workspace

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discoveryFixture() *fakeClient {
	return &fakeClient{
		children: map[string][]Block{
			"root": {
				collectionBlock("col_tasks", "Tasks"),
				collectionBlock("col_bugs", "Bugs"),
				pageBlock("pg_team", "Team Space"),
				pageBlock("pg_personal", "Personal Space"),
			},
			"pg_team": {
				collectionBlock("col_sprint", "Sprint Board"),
			},
			"pg_personal": {},
		},
		pageDetails: map[string]*Page{
			"pg_team": {
				Object: "page", ID: "pg_team",
				Properties: map[string]Property{
					"Name":  titleProp("Team Space"),
					"Owner": emailProp("lead@x.com"),
				},
			},
			"pg_personal": {
				Object: "page", ID: "pg_personal",
				Properties: map[string]Property{
					"Name":   titleProp("Personal Space"),
					"People": peopleProp("a@x.com"),
				},
			},
		},
		pagesByCollection: map[string][]Page{
			"col_tasks": {
				taskPage("rec_1", "Mine", "In Progress", map[string]Property{
					"Owner": emailProp("a@x.com"),
				}),
				taskPage("rec_2", "Theirs", "Todo", map[string]Property{
					"Owner": emailProp("b@x.com"),
				}),
			},
			"col_bugs": {
				taskPage("rec_3", "Crash on save", "Todo", nil),
			},
			"col_sprint": {
				taskPage("rec_4", "Sprint item", "Done", map[string]Property{
					"Assignee": peopleProp("a@x.com"),
				}),
			},
		},
	}
}

func TestDiscoverBuildsPerUserView(t *testing.T) {
	client := discoveryFixture()
	discoverer := NewDiscoverer(DiscovererOptions{Client: client, Log: zerolog.Nop()})

	result, err := discoverer.Discover(context.Background(), "root", "a@x.com")
	require.NoError(t, err)

	require.Len(t, result.OwnedPages, 1)
	assert.Equal(t, "pg_personal", result.OwnedPages[0].ID)

	require.Len(t, result.OwnedCollections, 2)
	assert.Equal(t, "col_sprint", result.OwnedCollections[0].ID)
	assert.Equal(t, 1, result.OwnedCollections[0].MatchCount)
	assert.Equal(t, "col_tasks", result.OwnedCollections[1].ID)
	assert.Equal(t, 1, result.OwnedCollections[1].MatchCount)

	require.Len(t, result.AllCollections, 3, "unmatched collections are still listed")
	assert.Equal(t, 3, result.Totals.Collections)
	assert.Equal(t, 4, result.Totals.Records)
	// a@x.com, b@x.com, lead@x.com
	assert.Equal(t, 3, result.Totals.Users)
	assert.Zero(t, result.SkippedPages)
}

func TestDiscoverToleratesPageDetailFailure(t *testing.T) {
	client := discoveryFixture()
	client.failPageDetail = map[string]bool{"pg_team": true}
	discoverer := NewDiscoverer(DiscovererOptions{Client: client, Log: zerolog.Nop()})

	result, err := discoverer.Discover(context.Background(), "root", "a@x.com")
	require.NoError(t, err, "one failing page never fails the call")

	assert.Equal(t, 1, result.SkippedPages)
	// The failed page's nested collection is lost with it; everything
	// else survives.
	assert.Len(t, result.AllCollections, 2)
	require.Len(t, result.OwnedPages, 1)
	assert.Equal(t, "pg_personal", result.OwnedPages[0].ID)
}

func TestDiscoverRootListingFailureSurfaces(t *testing.T) {
	client := discoveryFixture()
	client.failChildren = map[string]bool{"root": true}
	discoverer := NewDiscoverer(DiscovererOptions{Client: client, Log: zerolog.Nop()})

	_, err := discoverer.Discover(context.Background(), "root", "a@x.com")
	require.Error(t, err)
}

func TestDiscoverVisitsSharedCollectionOnce(t *testing.T) {
	client := discoveryFixture()
	// The sprint board is also linked directly under the root.
	client.children["root"] = append(client.children["root"], collectionBlock("col_sprint", "Sprint Board"))
	discoverer := NewDiscoverer(DiscovererOptions{Client: client, Log: zerolog.Nop()})

	result, err := discoverer.Discover(context.Background(), "root", "a@x.com")
	require.NoError(t, err)

	seen := 0
	for _, col := range result.AllCollections {
		if col.ID == "col_sprint" {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "a collection reachable twice is processed once")
	assert.Equal(t, 3, result.Totals.Collections)
}

func TestDiscoverWithoutUserStillAggregates(t *testing.T) {
	client := discoveryFixture()
	discoverer := NewDiscoverer(DiscovererOptions{Client: client, Log: zerolog.Nop()})

	result, err := discoverer.Discover(context.Background(), "root", "")
	require.NoError(t, err)

	assert.Empty(t, result.OwnedPages)
	assert.Empty(t, result.OwnedCollections)
	assert.Len(t, result.AllCollections, 3)
	assert.Equal(t, 4, result.Totals.Records)
}

func TestDiscoverRejectsEmptyRoot(t *testing.T) {
	discoverer := NewDiscoverer(DiscovererOptions{Client: &fakeClient{}, Log: zerolog.Nop()})
	_, err := discoverer.Discover(context.Background(), "", "a@x.com")
	require.Error(t, err)
}
