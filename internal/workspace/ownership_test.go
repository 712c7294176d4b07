package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func pageWithProps(props map[string]Property) *Page {
	return &Page{Object: "page", ID: "pg_1", Properties: props}
}

func TestBelongsToUserMatchesDirectOwnerEmail(t *testing.T) {
	page := pageWithProps(map[string]Property{
		"Name":   titleProp("Ship the importer"),
		"Owner":  emailProp("a@x.com"),
		"People": peopleProp(),
	})

	assert.True(t, BelongsToUser(page, "a@x.com"))
	assert.True(t, BelongsToUser(page, "A@X.COM"))
	assert.False(t, BelongsToUser(page, "b@x.com"))
}

func TestBelongsToUserMatchesPeopleEntry(t *testing.T) {
	page := pageWithProps(map[string]Property{
		"Name":     titleProp("Fix the flaky export"),
		"Assignee": peopleProp("a@x.com"),
	})

	assert.True(t, BelongsToUser(page, "a@x.com"))
	assert.False(t, BelongsToUser(page, "b@x.com"))
}

func TestBelongsToUserMatchesOwnerNamedTextFields(t *testing.T) {
	bySelect := pageWithProps(map[string]Property{
		"Owner": selectProp("a@x.com", ""),
	})
	assert.True(t, BelongsToUser(bySelect, "a@x.com"))

	byRichText := pageWithProps(map[string]Property{
		"Owner Email": richTextProp("a@x.com"),
	})
	assert.True(t, BelongsToUser(byRichText, "a@x.com"))

	// The same value under an unrelated name is not an owner field.
	unrelated := pageWithProps(map[string]Property{
		"Notes": richTextProp("a@x.com"),
	})
	assert.False(t, BelongsToUser(unrelated, "a@x.com"))
}

func TestBelongsToUserUnownedRecordMatchesNobody(t *testing.T) {
	page := pageWithProps(map[string]Property{
		"Name": titleProp("Orphaned task"),
	})
	assert.False(t, BelongsToUser(page, "a@x.com"))

	// People entries without a nested identity never match.
	anonymous := pageWithProps(map[string]Property{
		"Assignee": peopleProp(""),
	})
	assert.False(t, BelongsToUser(anonymous, "a@x.com"))
}

func TestBelongsToUserChecksBothEncodings(t *testing.T) {
	// Either encoding alone is enough; populating both for different
	// users attributes the record to each of them.
	page := pageWithProps(map[string]Property{
		"Owner":    emailProp("a@x.com"),
		"Assignee": peopleProp("b@x.com"),
	})

	assert.True(t, BelongsToUser(page, "a@x.com"))
	assert.True(t, BelongsToUser(page, "b@x.com"))
	assert.False(t, BelongsToUser(page, "c@x.com"))
}

func TestBelongsToUserRejectsEmptyIdentity(t *testing.T) {
	page := pageWithProps(map[string]Property{
		"Owner": emailProp("a@x.com"),
	})
	assert.False(t, BelongsToUser(page, ""))
	assert.False(t, BelongsToUser(page, "   "))
	assert.False(t, BelongsToUser(nil, "a@x.com"))
}

func TestDirectOwnerEmailPrefersEmailTypedFields(t *testing.T) {
	props := map[string]Property{
		"Contact": emailProp("typed@x.com"),
		"Owner":   selectProp("named@x.com", ""),
	}
	assert.Equal(t, "typed@x.com", directOwnerEmail(props))

	delete(props, "Contact")
	assert.Equal(t, "named@x.com", directOwnerEmail(props))
}

func TestPeopleEmailsDeduplicatesAcrossProperties(t *testing.T) {
	props := map[string]Property{
		"Assignee":  peopleProp("a@x.com", "b@x.com"),
		"Reviewers": peopleProp("B@X.com", "c@x.com", ""),
	}
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, peopleEmails(props))
}
