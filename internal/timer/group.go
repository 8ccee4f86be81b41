package timer

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/countdown.report/internal/segment"
)

// Group is the unit of classification: every preprocessed observation
// sharing one grouping key, aggregated over the visit. Groups are
// immutable once built; the classifier never writes back into them.
type Group struct {
	Key     segment.Key
	SiteURL string

	// NodeIDCount is the number of distinct DOM node identities seen for
	// this key. The same element should map to a small set of node IDs;
	// a large count is a grouping sanity signal, not a failure.
	NodeIDCount int

	// DistinctSeconds is the number of distinct whole-second timestamps
	// across the group's observations.
	DistinctSeconds int

	// Observations is the total snapshot count.
	Observations int

	// DigitSequence holds each snapshot's extracted digits in
	// timestamp-ascending order. Order is significant: it is the time
	// series of the displayed number.
	DigitSequence []string

	// FirstSeen and LastSeen bound the group's observation span.
	FirstSeen time.Time
	LastSeen  time.Time

	// MeanDiff and StdDevDiff summarise the parsed diff sequence for
	// reporting. Zero when fewer than one (resp. two) diffs exist.
	MeanDiff   float64
	StdDevDiff float64
}

// BuildGroups partitions observations by grouping key, orders each
// partition by timestamp ascending and computes the per-group
// aggregates. The returned slice is sorted by key so repeated runs over
// the same input produce identical output.
func BuildGroups(obs []segment.Preprocessed) []Group {
	parts := make(map[segment.Key][]segment.Preprocessed)
	for _, o := range obs {
		k := o.GroupKey()
		parts[k] = append(parts[k], o)
	}

	groups := make([]Group, 0, len(parts))
	for key, members := range parts {
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Time.Before(members[j].Time)
		})

		nodeIDs := make(map[int64]struct{})
		seconds := make(map[int64]struct{})
		seq := make([]string, 0, len(members))
		for _, m := range members {
			nodeIDs[m.NodeID] = struct{}{}
			seconds[m.Time.Unix()] = struct{}{}
			seq = append(seq, m.InnerDigits)
		}

		g := Group{
			Key:             key,
			SiteURL:         members[0].SiteURL,
			NodeIDCount:     len(nodeIDs),
			DistinctSeconds: len(seconds),
			Observations:    len(members),
			DigitSequence:   seq,
			FirstSeen:       members[0].Time,
			LastSeen:        members[len(members)-1].Time,
		}
		g.MeanDiff, g.StdDevDiff = diffStats(Diffs(seq))
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.VisitID != b.VisitID {
			return a.VisitID < b.VisitID
		}
		if a.Top != b.Top {
			return a.Top < b.Top
		}
		if a.Left != b.Left {
			return a.Left < b.Left
		}
		return a.InnerProcessed < b.InnerProcessed
	})

	return groups
}

// diffStats returns the mean and sample standard deviation of the diff
// sequence, for the report columns alongside the boolean verdicts.
func diffStats(diffs []int64) (mean, stddev float64) {
	if len(diffs) == 0 {
		return 0, 0
	}
	f := make([]float64, len(diffs))
	for i, d := range diffs {
		f[i] = float64(d)
	}
	mean = stat.Mean(f, nil)
	if len(f) > 1 {
		stddev = stat.StdDev(f, nil)
	}
	return mean, stddev
}
