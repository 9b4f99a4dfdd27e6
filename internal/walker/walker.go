// Package walker implements the backward, greedy path-discovery core: for
// each target object id it walks the reverse index toward a GC root,
// merging or displacing paths that cross previously-discovered nodes.
package walker

import (
	"github.com/leaks-collector/internal/heap"
	"github.com/leaks-collector/pkg/collections"
	"github.com/leaks-collector/pkg/config"
	"github.com/leaks-collector/pkg/utils"
)

// PathRecord is one surviving retention path for a target: the chain of
// ids from the target's direct parent up to and including the root,
// plus the merge depth that was in force when it was registered.
type PathRecord struct {
	IDsFromTarget []uint64
	RootID        uint64
	MergeDepth    int
}

// stepsExcludingRoot is the number of target-side ids in the record, i.e.
// len(IDsFromTarget) minus the root itself.
func (r *PathRecord) stepsExcludingRoot() int {
	return len(r.IDsFromTarget) - 1
}

type ownerEntry struct {
	pathIndex       int
	stepsFromTarget int // 1-based: IDsFromTarget[stepsFromTarget-1] == owned id
}

// ClaimedNodes is the run-wide, append-only set of ids claimed from
// previously-walked targets' far-from-root regions. One instance is shared
// across every target's Walk call within an AnalysisRun.
type ClaimedNodes map[uint64]struct{}

// NewClaimedNodes returns an empty claim set.
func NewClaimedNodes() ClaimedNodes {
	return make(ClaimedNodes)
}

func (c ClaimedNodes) has(id uint64) bool {
	_, ok := c[id]
	return ok
}

func (c ClaimedNodes) claim(id uint64) {
	c[id] = struct{}{}
}

// Params bundles one target's Walk inputs. ReverseIndex, AllTargets, and
// Claimed are shared read-only (Claimed is mutated, but only by appending
// this target's own claims after the walk completes) across every target
// in a run.
type Params struct {
	TargetID     uint64
	ReverseIndex *heap.ReverseIndex
	Roots        *heap.RootSet
	AllTargets   map[uint64]struct{}
	Claimed      ClaimedNodes
	ClassOf      func(id uint64) string

	MaxBacktracks     int
	MaxPathsPerTarget int
	DefaultMergeDepth int
	Anchors           []config.Anchor

	Logger utils.Logger
}

var visitedMapPool = collections.NewMapPool[uint64, bool](64)

// Walk runs the walker for a single target and returns its surviving
// PathRecords, in discovery order. An empty result means the target is
// dependent on some other target's path (see the Dependent Targets rule).
func Walk(p Params) []*PathRecord {
	parents := p.ReverseIndex.Parents(p.TargetID)
	if len(parents) == 0 {
		return nil
	}

	records := make([]*PathRecord, 0, 4)
	owner := make(map[uint64]ownerEntry, 64)

	for _, p0 := range parents {
		if len(records) >= p.MaxPathsPerTarget {
			break
		}
		if _, isTarget := p.AllTargets[p0]; isTarget {
			continue
		}
		if p.Claimed.has(p0) {
			continue
		}

		outcome, chain, stopNode := walkFromDirectParent(p0, p.TargetID, p.ReverseIndex, p.Roots, owner, p.AllTargets, p.Claimed, p.MaxBacktracks)

		switch outcome {
		case outcomeFoundRoot:
			mergeDepth := mergeDepthFor(chain, p.ClassOf, p.Anchors, p.DefaultMergeDepth)
			registerFoundRoot(&records, owner, chain, stopNode, mergeDepth)

		case outcomeMerged:
			handleMerge(&records, owner, chain, stopNode, p.Logger)

		case outcomeDeadEnd:
			// Nothing to register; this direct parent contributes no path.
		}
	}

	claimFromRecords(records, p.Claimed)
	return records
}

type walkOutcome int

const (
	outcomeDeadEnd walkOutcome = iota
	outcomeFoundRoot
	outcomeMerged
)

type stackFrame struct {
	id     uint64
	cursor int // next untried index into reverseIndex.Parents(id)
}

// walkFromDirectParent performs the greedy backward walk described in the
// core algorithm's walk-to-root rules, starting from p0. It mirrors the
// stack-of-frames-with-resumption-cursor shape of a depth-first search with
// bounded backtracking: each frame remembers where it left off so a dead
// end can resume the parent frame's search instead of restarting it.
func walkFromDirectParent(p0, targetID uint64, idx *heap.ReverseIndex, roots *heap.RootSet, owner map[uint64]ownerEntry, allTargets map[uint64]struct{}, claimed ClaimedNodes, maxBacktracks int) (walkOutcome, []uint64, uint64) {
	visited := visitedMapPool.Get()
	defer visitedMapPool.Put(visited)
	visited[targetID] = true
	visited[p0] = true

	stack := make([]stackFrame, 0, 16)
	stack = append(stack, stackFrame{id: p0, cursor: 0})

	backtracks := 0

	for len(stack) > 0 {
		frame := &stack[len(stack)-1]
		c := frame.id

		if roots.IsRoot(c) {
			return outcomeFoundRoot, chainOf(stack), c
		}
		if _, owned := owner[c]; owned {
			return outcomeMerged, chainOf(stack), c
		}

		if claimed.has(c) {
			if len(stack) > 1 && backtracks < maxBacktracks {
				backtracks++
				delete(visited, c)
				stack = stack[:len(stack)-1]
				continue
			}
			return outcomeDeadEnd, nil, 0
		}

		candidates := idx.Parents(c)
		advanced := false
		for frame.cursor < len(candidates) {
			q := candidates[frame.cursor]
			frame.cursor++
			if visited[q] {
				continue
			}
			if _, isTarget := allTargets[q]; isTarget {
				continue
			}
			if claimed.has(q) {
				continue
			}
			visited[q] = true
			stack = append(stack, stackFrame{id: q, cursor: 0})
			advanced = true
			break
		}

		if advanced {
			continue
		}

		if len(stack) > 1 && backtracks < maxBacktracks {
			backtracks++
			delete(visited, c)
			stack = stack[:len(stack)-1]
			continue
		}
		return outcomeDeadEnd, nil, 0
	}

	return outcomeDeadEnd, nil, 0
}

func chainOf(stack []stackFrame) []uint64 {
	chain := make([]uint64, len(stack))
	for i, f := range stack {
		chain[i] = f.id
	}
	return chain
}

func mergeDepthFor(chain []uint64, classOf func(uint64) string, anchors []config.Anchor, defaultDepth int) int {
	if classOf == nil {
		return defaultDepth
	}
	for idx, id := range chain {
		name := classOf(id)
		if name == "" {
			continue
		}
		for _, a := range anchors {
			// Exact match against the oracle's fully-qualified class name;
			// the bundled default anchor ("Disposer") is bare because §4.4
			// lists it that way, so it only fires for a class actually named
			// that with no package.
			if a.ClassName == name {
				stepsFromRoot := (len(chain) - 1) - idx
				return stepsFromRoot + a.Offset
			}
		}
	}
	return defaultDepth
}

func registerFoundRoot(records *[]*PathRecord, owner map[uint64]ownerEntry, chain []uint64, rootID uint64, mergeDepth int) {
	idx := len(*records)
	rec := &PathRecord{IDsFromTarget: chain, RootID: rootID, MergeDepth: mergeDepth}
	*records = append(*records, rec)
	for i, id := range chain {
		owner[id] = ownerEntry{pathIndex: idx, stepsFromTarget: i + 1}
	}
}

// handleMerge applies the decision table for a walk that ran into a node
// already owned by an earlier record.
func handleMerge(records *[]*PathRecord, owner map[uint64]ownerEntry, newPrefix []uint64, sharedNode uint64, logger utils.Logger) {
	entry := owner[sharedNode]
	r := (*records)[entry.pathIndex]
	e := entry.stepsFromTarget

	if e > len(r.IDsFromTarget) {
		if logger != nil {
			logger.Debug("skipping merge: stale owner entry for node %d (step %d beyond record length %d)", sharedNode, e, len(r.IDsFromTarget))
		}
		return
	}

	existingStepsFromRoot := len(r.IDsFromTarget) - e

	switch {
	case existingStepsFromRoot < r.MergeDepth:
		// Near root: genuine diversity, register a new record.
		newIDs := make([]uint64, 0, len(newPrefix)+len(r.IDsFromTarget)-e)
		newIDs = append(newIDs, newPrefix...)
		newIDs = append(newIDs, r.IDsFromTarget[e:]...)

		idx := len(*records)
		newRecord := &PathRecord{IDsFromTarget: newIDs, RootID: r.RootID, MergeDepth: r.MergeDepth}
		*records = append(*records, newRecord)
		for i := 0; i < len(newPrefix); i++ {
			owner[newPrefix[i]] = ownerEntry{pathIndex: idx, stepsFromTarget: i + 1}
		}

	case len(newPrefix) < e:
		// Far from root, strictly shorter prefix: displace R in place.
		suffix := r.IDsFromTarget[e:]
		for i := 0; i < e; i++ {
			delete(owner, r.IDsFromTarget[i])
		}
		r.IDsFromTarget = append(append([]uint64{}, newPrefix...), suffix...)
		for i := 0; i < len(newPrefix); i++ {
			owner[newPrefix[i]] = ownerEntry{pathIndex: entry.pathIndex, stepsFromTarget: i + 1}
		}
		for i, id := range suffix {
			owner[id] = ownerEntry{pathIndex: entry.pathIndex, stepsFromTarget: len(newPrefix) + i + 1}
		}

	default:
		// Far from root, not shorter: redundant, skip.
	}
}

func claimFromRecords(records []*PathRecord, claimed ClaimedNodes) {
	for _, r := range records {
		stepsExcludingRoot := r.stepsExcludingRoot()
		count := stepsExcludingRoot - r.MergeDepth + 1
		if count <= 0 {
			continue
		}
		if count > len(r.IDsFromTarget) {
			count = len(r.IDsFromTarget)
		}
		for _, id := range r.IDsFromTarget[:count] {
			claimed.claim(id)
		}
	}
}

// IsDependent reports whether a target with these records should be
// reported as dependent on some other target's path rather than carrying
// its own path group.
func IsDependent(records []*PathRecord) bool {
	return len(records) == 0
}
