package splittree

import (
	"cmp"
	"slices"

	"github.com/Sumatoshi-tech/forestcheck/pkg/addtree"
	"github.com/Sumatoshi-tech/forestcheck/pkg/domain"
)

// Candidate is a scored domain-tree split.
type Candidate struct {
	Split   domain.Split
	Score   int
	Balance int
}

// Better reports whether c should be preferred over o: higher score, then
// lower balance, then lower feature id, then lower threshold.
func (c Candidate) Better(o Candidate) bool {
	if c.Score != o.Score {
		return c.Score > o.Score
	}

	if c.Balance != o.Balance {
		return c.Balance < o.Balance
	}

	if c.Split.Feature != o.Split.Feature {
		return c.Split.Feature < o.Split.Feature
	}

	return c.Split.Threshold < o.Split.Threshold
}

// Scorer rates a candidate split of a leaf.
type Scorer interface {
	Score(at *addtree.AddTree, leaf *Leaf, s domain.Split) Candidate
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(at *addtree.AddTree, leaf *Leaf, s domain.Split) Candidate

// Score implements Scorer.
func (f ScorerFunc) Score(at *addtree.AddTree, leaf *Leaf, s domain.Split) Candidate {
	return f(at, leaf, s)
}

// ReachabilityScorer prefers splits that remove the most reachable internal
// tree nodes from the larger child.
type ReachabilityScorer struct{}

// Score returns the number of reachable internal nodes minus the larger of
// the two children's counts; Balance is the difference between the children.
func (ReachabilityScorer) Score(at *addtree.AddTree, leaf *Leaf, s domain.Split) Candidate {
	total := leaf.countInternal(at, leaf.box)

	left, right := 0, 0

	if lb, ok := leaf.box.Refine(s, true); ok {
		left = leaf.countInternal(at, lb)
	}

	if rb, ok := leaf.box.Refine(s, false); ok {
		right = leaf.countInternal(at, rb)
	}

	balance := left - right
	if balance < 0 {
		balance = -balance
	}

	return Candidate{Split: s, Score: total - max(left, right), Balance: balance}
}

// Candidates returns the thresholds of reachable internal nodes that lie
// strictly inside the leaf box, sorted by feature then threshold.
func (l *Leaf) Candidates(at *addtree.AddTree) []domain.Split {
	seen := make(map[domain.Split]struct{})

	for i, t := range at.Trees() {
		r := l.reach[i]

		for _, id := range t.InternalNodes() {
			if !r.has(id) {
				continue
			}

			s := t.GetSplit(id)
			d := l.box.Get(s.Feature)

			if d.Lo < s.Threshold && s.Threshold < d.Hi {
				seen[s] = struct{}{}
			}
		}
	}

	out := make([]domain.Split, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}

	slices.SortFunc(out, func(a, b domain.Split) int {
		if c := cmp.Compare(a.Feature, b.Feature); c != 0 {
			return c
		}

		return cmp.Compare(a.Threshold, b.Threshold)
	})

	return out
}

// FindBestDomTreeSplit scores every candidate split with scorer (the
// ReachabilityScorer when nil) and records the best. It returns false when
// the leaf has no candidate.
func (l *Leaf) FindBestDomTreeSplit(at *addtree.AddTree, scorer Scorer) bool {
	if scorer == nil {
		scorer = ReachabilityScorer{}
	}

	l.hasSplit = false
	l.score, l.balance = 0, 0

	var best Candidate

	for _, s := range l.Candidates(at) {
		c := scorer.Score(at, l, s)
		if !l.hasSplit || c.Better(best) {
			best = c
			l.hasSplit = true
		}
	}

	if l.hasSplit {
		l.best, l.score, l.balance = best.Split, best.Score, best.Balance
	}

	return l.hasSplit
}
