// Package segment defines the raw and preprocessed forms of on-page
// text-segment observations captured during a crawl, and the key used
// to group repeated snapshots of the same visual element.
package segment

import (
	"regexp"
	"strings"
	"time"
)

// Placeholder is the token substituted for every maximal digit run when
// deriving a segment's textual template. It contains no digits, which
// makes CollapseDigitRuns idempotent on its own output.
const Placeholder = "#"

var digitRuns = regexp.MustCompile(`[0-9]+`)

// Observation is one row of the crawl segment log: the visible state of
// one DOM text node at one point in time during a page visit. The
// upstream crawler only logs nodes whose text contains at least one
// digit and excludes the page body element.
type Observation struct {
	SiteURL   string    `json:"site_url"`
	VisitID   int64     `json:"visit_id"`
	NodeID    int64     `json:"node_id"`
	Top       float64   `json:"top"`
	Left      float64   `json:"left"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	InnerText string    `json:"inner_text"`
	Time      time.Time `json:"time_stamp"`
}

// Preprocessed is an Observation plus the two derived text forms the
// timer detector operates on. Both are derived exactly once and never
// mutated afterwards.
type Preprocessed struct {
	Observation

	// InnerProcessed is InnerText with every maximal digit run collapsed
	// to Placeholder. Two snapshots with equal InnerProcessed show the
	// same textual template around (possibly different) numbers.
	InnerProcessed string

	// InnerDigits is the concatenation of all digit characters of
	// InnerText in original order. Empty means no number present.
	InnerDigits string
}

// Key identifies repeated snapshots of what is inferred to be the same
// visual element: same visit, same on-screen position, same textual
// template.
type Key struct {
	VisitID        int64
	Top            float64
	Left           float64
	InnerProcessed string
}

// GroupKey returns the grouping key for this preprocessed observation.
func (p *Preprocessed) GroupKey() Key {
	return Key{
		VisitID:        p.VisitID,
		Top:            p.Top,
		Left:           p.Left,
		InnerProcessed: p.InnerProcessed,
	}
}

// CollapseDigitRuns replaces every maximal run of decimal digits in s
// with Placeholder, producing the segment's textual template.
func CollapseDigitRuns(s string) string {
	return digitRuns.ReplaceAllString(s, Placeholder)
}

// DigitsOnly strips every non-digit character from s, keeping digit
// characters in their original order.
func DigitsOnly(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Preprocess derives the template and digit forms for each observation.
// It is pure and order-preserving; the input slice is not modified and
// need not be sorted.
func Preprocess(obs []Observation) []Preprocessed {
	out := make([]Preprocessed, 0, len(obs))
	for _, o := range obs {
		out = append(out, Preprocessed{
			Observation:    o,
			InnerProcessed: CollapseDigitRuns(o.InnerText),
			InnerDigits:    DigitsOnly(o.InnerText),
		})
	}
	return out
}
