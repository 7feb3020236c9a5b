/*
resolver.go - Conflict resolution for inserted and retimed intervals

PURPOSE:
  Given a candidate interval C = [cs, ce) and the user's other intervals on
  the same local day, computes the mutations that keep the day overlap-free
  and then writes the candidate.

CLASSIFICATION (existing interval E against C):
  Open E, E.start < cs             -> truncate   E.end = cs
  Open E, cs <= E.start < ce       -> shift      E.start = ce (still open),
                                      or delete when C is itself open
  E.start >= cs && E.end <= ce     -> delete
  E.start < cs && E.end > ce       -> split      E.end = cs, tail [ce, E.end)
  E.start < cs < E.end <= ce       -> shrink     E.end = cs
  cs <= E.start < ce < E.end       -> shift      E.start = ce
  otherwise                        -> unchanged

  An open candidate runs through now: ce = max(now, cs).
  A truncated open interval stops at the first closed interval that starts
  after it and before cs, so closing it never creates an overlap.

ORDERING:
  Each mutation touches only its own record (a split creates a new record
  and never touches siblings), so mutations apply in any order.

ATOMICITY:
  Plan is pure. ResolutionPlan.Apply writes through the Store it is given;
  callers run it inside TxStore.WithTx so a failed tail insert rolls back
  the shrink that preceded it.
*/
package worklog

import (
	"context"
	"sort"
	"time"
)

// =============================================================================
// MUTATIONS
// =============================================================================

type MutationKind string

const (
	MutationTruncate MutationKind = "truncate"
	MutationDelete   MutationKind = "delete"
	MutationSplit    MutationKind = "split"
	MutationShrink   MutationKind = "shrink"
	MutationShift    MutationKind = "shift"
)

// Mutation is one change to an existing interval.
type Mutation struct {
	Kind   MutationKind
	Target WorkInterval // state before the mutation

	// NewStart is set for shift, NewEnd for truncate, shrink and split.
	NewStart time.Time
	NewEnd   time.Time

	// Tail is the record a split creates.
	Tail *WorkInterval
}

// ResolutionPlan is the full set of changes for one candidate.
type ResolutionPlan struct {
	Candidate WorkInterval
	ExcludeID IntervalID // set when the candidate replaces an existing record
	Mutations []Mutation
}

// IsEdit reports whether the plan updates an existing record.
func (p ResolutionPlan) IsEdit() bool { return p.ExcludeID != "" }

// =============================================================================
// PLANNING
// =============================================================================

// PlanResolution classifies every existing interval against candidate.
// existing must already exclude the record being edited and any record not
// owned by the candidate's user.
func PlanResolution(candidate WorkInterval, existing []WorkInterval, excludeID IntervalID, now time.Time) (ResolutionPlan, error) {
	if err := candidate.Validate(); err != nil {
		return ResolutionPlan{}, err
	}

	cs := candidate.Start
	ce, closed := candidate.End.Time()
	if !closed {
		ce = now
		if ce.Before(cs) {
			ce = cs
		}
	}

	plan := ResolutionPlan{Candidate: candidate, ExcludeID: excludeID}
	for _, e := range existing {
		if excludeID != "" && e.ID == excludeID {
			continue
		}
		if m, ok := classify(e, cs, ce, !closed); ok {
			if m.Kind == MutationTruncate {
				m.NewEnd = clampTruncation(m, existing, excludeID)
			}
			plan.Mutations = append(plan.Mutations, m)
		}
	}
	return plan, nil
}

func clampTruncation(m Mutation, existing []WorkInterval, excludeID IntervalID) time.Time {
	end := m.NewEnd
	for _, x := range existing {
		if x.ID == m.Target.ID || (excludeID != "" && x.ID == excludeID) || x.End.IsOpen() {
			continue
		}
		if x.Start.After(m.Target.Start) && x.Start.Before(end) {
			end = x.Start
		}
	}
	return end
}

func classify(e WorkInterval, cs, ce time.Time, candidateOpen bool) (Mutation, bool) {
	es := e.Start
	ee, closed := e.End.Time()

	if !closed {
		switch {
		case es.Before(cs):
			return Mutation{Kind: MutationTruncate, Target: e, NewEnd: cs}, true
		case candidateOpen:
			return Mutation{Kind: MutationDelete, Target: e}, true
		case es.Before(ce):
			return Mutation{Kind: MutationShift, Target: e, NewStart: ce}, true
		}
		return Mutation{}, false
	}

	switch {
	case !es.Before(cs) && !ee.After(ce):
		return Mutation{Kind: MutationDelete, Target: e}, true

	case es.Before(cs) && ee.After(ce):
		tail := e.cloneDetails()
		tail.Start = ce
		tail.End = ClosedAt(ee)
		return Mutation{Kind: MutationSplit, Target: e, NewEnd: cs, Tail: &tail}, true

	case es.Before(cs) && cs.Before(ee):
		return Mutation{Kind: MutationShrink, Target: e, NewEnd: cs}, true

	case !es.Before(cs) && es.Before(ce) && ce.Before(ee):
		return Mutation{Kind: MutationShift, Target: e, NewStart: ce}, true
	}
	return Mutation{}, false
}

// =============================================================================
// APPLICATION
// =============================================================================

// Apply writes the mutations and then creates (insert) or updates (edit)
// the candidate verbatim. Run it inside WithTx.
func (p ResolutionPlan) Apply(ctx context.Context, s Store) (WorkInterval, error) {
	for _, m := range p.Mutations {
		if err := applyMutation(ctx, s, m); err != nil {
			return WorkInterval{}, err
		}
	}

	if p.IsEdit() {
		iv, err := s.UpdateInterval(ctx, p.ExcludeID, PatchFrom(p.Candidate))
		return iv, storeErr("update candidate", err)
	}
	iv, err := s.CreateInterval(ctx, p.Candidate)
	return iv, storeErr("create candidate", err)
}

func applyMutation(ctx context.Context, s Store, m Mutation) error {
	id := m.Target.ID
	switch m.Kind {
	case MutationDelete:
		return storeErr("delete "+string(id), s.DeleteInterval(ctx, id))

	case MutationTruncate, MutationShrink:
		_, err := s.UpdateInterval(ctx, id, endPatch(ClosedAt(m.NewEnd)))
		return storeErr(string(m.Kind)+" "+string(id), err)

	case MutationShift:
		_, err := s.UpdateInterval(ctx, id, startPatch(m.NewStart))
		return storeErr("shift "+string(id), err)

	case MutationSplit:
		if _, err := s.UpdateInterval(ctx, id, endPatch(ClosedAt(m.NewEnd))); err != nil {
			return storeErr("split "+string(id), err)
		}
		_, err := s.CreateInterval(ctx, *m.Tail)
		return storeErr("split tail "+string(id), err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// Overlapping returns the pairs of closed intervals in ivs that overlap.
// An empty result means the no-overlap invariant holds.
func Overlapping(ivs []WorkInterval) [][2]WorkInterval {
	closed := make([]WorkInterval, 0, len(ivs))
	for _, iv := range ivs {
		if iv.End.IsClosed() {
			closed = append(closed, iv)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].Start.Before(closed[j].Start) })

	var pairs [][2]WorkInterval
	for i := range closed {
		ei, _ := closed[i].End.Time()
		for j := i + 1; j < len(closed); j++ {
			if !closed[j].Start.Before(ei) {
				break
			}
			pairs = append(pairs, [2]WorkInterval{closed[i], closed[j]})
		}
	}
	return pairs
}
