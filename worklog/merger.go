/*
merger.go - Overlap merge of fragmented same-signature intervals

PURPOSE:
  Punch corrections and splits leave a day fragmented into many short
  intervals with the same project, category and content. The merger
  stitches contiguous ones back into single records.

ALGORITHM:
  1. Take the closed intervals of the day.
  2. Group by Signature (projectCode, category, trimmed content).
  3. Walk each group by start. next joins the current cluster when
       next.start <= cluster.end + 1 minute
     and no interval of another group starts after the cluster's last
     member starts and ends at or before next.end.
  4. Clusters with >= 2 members become one new record spanning
     [first.start, cluster.end); the members are deleted.

  cluster.end is the latest end among members, so an interval fully
  contained in an earlier member never shortens the merged span.

IDEMPOTENCE:
  Clusters are maximal, so a second run over a merged day finds nothing.
*/
package worklog

import (
	"sort"
	"strings"
	"time"
)

// MergeGapTolerance is the widest gap between two intervals that still merges.
const MergeGapTolerance = time.Minute

// MergeCluster is a run of same-signature intervals that will merge.
type MergeCluster struct {
	Signature Signature
	Members   []WorkInterval
	Start     time.Time
	End       time.Time
}

// Merged returns the consolidated record that replaces the members.
func (c MergeCluster) Merged() WorkInterval {
	iv := c.Members[0].cloneDetails()
	iv.Content = strings.TrimSpace(iv.Content)
	iv.Start = c.Start
	iv.End = ClosedAt(c.End)
	for _, m := range c.Members[1:] {
		iv.IsOvertime = iv.IsOvertime || m.IsOvertime
	}
	return iv
}

func (c MergeCluster) IDs() []IntervalID {
	ids := make([]IntervalID, len(c.Members))
	for i, m := range c.Members {
		ids[i] = m.ID
	}
	return ids
}

// MergeReport describes one merge that was performed.
type MergeReport struct {
	OriginalCount int
	OriginalIDs   []IntervalID
	Merged        WorkInterval
}

// MergePreview describes one merge that would be performed.
type MergePreview struct {
	Signature     Signature
	Count         int
	Start         time.Time
	End           time.Time
	TotalDuration time.Duration // span of the merged record
	IntervalIDs   []IntervalID
}

func (c MergeCluster) Preview() MergePreview {
	return MergePreview{
		Signature:     c.Signature,
		Count:         len(c.Members),
		Start:         c.Start,
		End:           c.End,
		TotalDuration: c.End.Sub(c.Start),
		IntervalIDs:   c.IDs(),
	}
}

// PlanMerge returns the clusters of two or more members, ordered by start.
// Open intervals are ignored.
func PlanMerge(intervals []WorkInterval) []MergeCluster {
	var closed []WorkInterval
	for _, iv := range intervals {
		if iv.End.IsClosed() {
			closed = append(closed, iv)
		}
	}

	groups := make(map[Signature][]WorkInterval)
	for _, iv := range closed {
		sig := iv.Signature()
		groups[sig] = append(groups[sig], iv)
	}

	var clusters []MergeCluster
	for sig, members := range groups {
		if len(members) < 2 {
			continue
		}
		sortByStart(members)
		clusters = append(clusters, clusterGroup(sig, members, closed)...)
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Start.Before(clusters[j].Start) })
	return clusters
}

func clusterGroup(sig Signature, members, all []WorkInterval) []MergeCluster {
	var out []MergeCluster

	cur := newCluster(sig, members[0])
	for _, next := range members[1:] {
		last := cur.Members[len(cur.Members)-1]
		nextEnd, _ := next.End.Time()

		contiguous := !next.Start.After(cur.End.Add(MergeGapTolerance))
		if contiguous && !foreignBetween(sig, last, nextEnd, all) {
			cur.Members = append(cur.Members, next)
			if nextEnd.After(cur.End) {
				cur.End = nextEnd
			}
			continue
		}

		if len(cur.Members) >= 2 {
			out = append(out, cur)
		}
		cur = newCluster(sig, next)
	}
	if len(cur.Members) >= 2 {
		out = append(out, cur)
	}
	return out
}

func newCluster(sig Signature, first WorkInterval) MergeCluster {
	end, _ := first.End.Time()
	return MergeCluster{
		Signature: sig,
		Members:   []WorkInterval{first},
		Start:     first.Start,
		End:       end,
	}
}

// foreignBetween reports whether an interval of another signature starts
// after last starts and ends no later than nextEnd.
func foreignBetween(sig Signature, last WorkInterval, nextEnd time.Time, all []WorkInterval) bool {
	for _, f := range all {
		if f.Signature() == sig {
			continue
		}
		fe, _ := f.End.Time()
		if f.Start.After(last.Start) && !fe.After(nextEnd) {
			return true
		}
	}
	return false
}

func sortByStart(ivs []WorkInterval) {
	sort.SliceStable(ivs, func(i, j int) bool {
		if ivs[i].Start.Equal(ivs[j].Start) {
			return ivs[i].ID < ivs[j].ID
		}
		return ivs[i].Start.Before(ivs[j].Start)
	})
}
