package workspace

import (
	"sort"
	"strings"
)

// Property names that upstream workspaces commonly use for a direct owner
// identity. Compared case-insensitively.
var ownerFieldCandidates = []string{"Owner", "Email", "Owner Email"}

// ownershipRule is one way a record can encode that it belongs to a user.
// userEmail arrives lower-cased and non-empty.
type ownershipRule struct {
	name    string
	matches func(props map[string]Property, userEmail string) bool
}

// Upstream data is inconsistent about which encoding is populated, so every
// rule is evaluated on every call and the results are OR-ed. Never
// short-circuit this table.
var ownershipRules = []ownershipRule{
	{name: "direct-owner-field", matches: matchesDirectOwner},
	{name: "people-entry", matches: matchesPeopleEntry},
}

// BelongsToUser reports whether the record's property bag attributes it to
// userEmail. A record populating neither ownership encoding belongs to no
// one. Matching is case-insensitive on the identity value.
func BelongsToUser(page *Page, userEmail string) bool {
	if page == nil {
		return false
	}
	email := strings.ToLower(strings.TrimSpace(userEmail))
	if email == "" {
		return false
	}

	owned := false
	for _, rule := range ownershipRules {
		if rule.matches(page.Properties, email) {
			owned = true
		}
	}
	return owned
}

// matchesDirectOwner checks identity-valued fields: any email-type
// property, and select or rich_text properties under the candidate owner
// names.
func matchesDirectOwner(props map[string]Property, userEmail string) bool {
	for name, prop := range props {
		switch prop.Type {
		case "email":
			if strings.EqualFold(strings.TrimSpace(prop.Email), userEmail) {
				return true
			}
		case "select":
			if isOwnerFieldName(name) && prop.Select != nil &&
				strings.EqualFold(strings.TrimSpace(prop.Select.Name), userEmail) {
				return true
			}
		case "rich_text":
			if isOwnerFieldName(name) &&
				strings.EqualFold(prop.PlainText(), userEmail) {
				return true
			}
		}
	}
	return false
}

// matchesPeopleEntry checks every entry of every people-type property for
// a matching nested identity. Entries without one never match.
func matchesPeopleEntry(props map[string]Property, userEmail string) bool {
	for _, prop := range props {
		if prop.Type != "people" {
			continue
		}
		for _, person := range prop.People {
			if person.Person == nil {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(person.Person.Email), userEmail) {
				return true
			}
		}
	}
	return false
}

func isOwnerFieldName(name string) bool {
	for _, candidate := range ownerFieldCandidates {
		if strings.EqualFold(strings.TrimSpace(name), candidate) {
			return true
		}
	}
	return false
}

// directOwnerEmail extracts the best-effort single owner identity used for
// notification context: the first email-type value, else the first
// owner-named select/rich_text value. Property names are visited sorted so
// the pick does not depend on map iteration order.
func directOwnerEmail(props map[string]Property) string {
	names := sortedPropertyNames(props)
	for _, name := range names {
		prop := props[name]
		if prop.Type != "email" {
			continue
		}
		if v := strings.TrimSpace(prop.Email); v != "" {
			return v
		}
	}
	for _, candidate := range ownerFieldCandidates {
		for _, name := range names {
			if !strings.EqualFold(strings.TrimSpace(name), candidate) {
				continue
			}
			prop := props[name]
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
	}
	return ""
}

// peopleEmails collects the distinct nested identities across all
// people-type properties, deduplicated case-insensitively.
func peopleEmails(props map[string]Property) []string {
	var out []string
	seen := map[string]bool{}
	for _, name := range sortedPropertyNames(props) {
		prop := props[name]
		if prop.Type != "people" {
			continue
		}
		for _, person := range prop.People {
			if person.Person == nil {
				continue
			}
			email := strings.TrimSpace(person.Person.Email)
			if email == "" {
				continue
			}
			key := strings.ToLower(email)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, email)
		}
	}
	return out
}

func sortedPropertyNames(props map[string]Property) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
