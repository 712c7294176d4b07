package workspace

import "strings"

// Bucket is the canonical lifecycle state of a record.
type Bucket string

const (
	BucketTodo       Bucket = "Todo"
	BucketInProgress Bucket = "InProgress"
	BucketCompleted  Bucket = "Completed"
)

// NormalizedStatus is the engine-side view of an externally defined status
// value. Color is carried through for rendering only and never influences
// the bucket.
type NormalizedStatus struct {
	RawLabel string `json:"rawLabel"`
	Color    string `json:"color,omitempty"`
	Bucket   Bucket `json:"bucket"`
	SubLabel string `json:"subLabel,omitempty"`
}

// statusRule maps labels containing any of its keywords onto one bucket.
// Rules are evaluated top to bottom; the first hit wins.
type statusRule struct {
	bucket   Bucket
	keywords []string
}

var statusRules = []statusRule{
	{bucket: BucketTodo, keywords: []string{"todo", "to-do", "backlog", "planning"}},
	{bucket: BucketInProgress, keywords: []string{"progress", "working", "development", "review", "testing"}},
	{bucket: BucketCompleted, keywords: []string{"done", "completed", "finished", "deployed", "closed"}},
}

func (r statusRule) matches(loweredLabel string) bool {
	for _, keyword := range r.keywords {
		if strings.Contains(loweredLabel, keyword) {
			return true
		}
	}
	return false
}

// Normalize buckets an arbitrary status label. Matching is case-insensitive
// substring search over the fixed rule table; labels matching no rule fall
// into BucketTodo. The sub-label keeps the original text whenever it
// differs from the canonical bucket name. Pure function: no state, no I/O.
func Normalize(rawLabel, rawColor string) NormalizedStatus {
	lowered := strings.ToLower(rawLabel)

	bucket := BucketTodo
	for _, rule := range statusRules {
		if rule.matches(lowered) {
			bucket = rule.bucket
			break
		}
	}

	out := NormalizedStatus{
		RawLabel: rawLabel,
		Color:    rawColor,
		Bucket:   bucket,
	}
	if rawLabel != string(bucket) {
		out.SubLabel = rawLabel
	}
	return out
}
