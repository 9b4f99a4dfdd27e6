// Package report implements the Grouper and Reporter: turning resolved
// per-target paths into the grouped, human-readable output format.
package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/leaks-collector/internal/walker"
)

// ResolvedPath is one surviving path for one target, already run through
// the Edge Resolver: a root kind/id, the step sequence from root to
// target, and the target's own id and class name.
type ResolvedPath struct {
	TargetID    uint64
	TargetClass string
	RootKind    string
	RootID      uint64
	Steps       []walker.EdgeStep
}

// Group is one canonical-signature bucket: every target id that produced
// an equivalent path, plus the first-observed path as the exemplar.
type Group struct {
	Signature string
	Exemplar  ResolvedPath
	TargetIDs []uint64
}

// DependentTarget is a target with zero surviving records, reported as
// held by some other target's path.
type DependentTarget struct {
	ClassName string
	TargetIDs []uint64
}

// Signature builds the canonical signature of a resolved path: steps
// joined by " -> ", with array-index erasure so two paths differing only
// in which element index they crossed collapse into the same group.
func Signature(p ResolvedPath) string {
	parts := make([]string, 0, len(p.Steps)+2)
	parts = append(parts, "Root["+p.RootKind+"]")
	for _, s := range p.Steps {
		parts = append(parts, signatureStep(s))
	}
	parts = append(parts, p.TargetClass)
	return strings.Join(parts, " -> ")
}

func signatureStep(s walker.EdgeStep) string {
	if s.ArrayIndex >= 0 {
		return s.ClassName + "[*]"
	}
	return s.ClassName + "." + s.FieldName
}

// GroupPaths buckets resolved paths by canonical signature, preserving
// first-seen signature order, then sorts the resulting groups by target
// count descending (stable for ties, so first-seen order breaks ties).
func GroupPaths(paths []ResolvedPath) []Group {
	order := make([]string, 0, len(paths))
	bySignature := make(map[string]*Group, len(paths))

	for _, p := range paths {
		sig := Signature(p)
		g, ok := bySignature[sig]
		if !ok {
			g = &Group{Signature: sig, Exemplar: p}
			bySignature[sig] = g
			order = append(order, sig)
		}
		g.TargetIDs = append(g.TargetIDs, p.TargetID)
	}

	groups := make([]Group, len(order))
	for i, sig := range order {
		groups[i] = *bySignature[sig]
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i].TargetIDs) > len(groups[j].TargetIDs)
	})
	return groups
}

// GroupDependents buckets dependent target ids by class name, in
// first-seen class order.
func GroupDependents(classNames map[uint64]string, dependentIDs []uint64) []DependentTarget {
	order := make([]string, 0)
	byClass := make(map[string]*DependentTarget)

	for _, id := range dependentIDs {
		name := classNames[id]
		d, ok := byClass[name]
		if !ok {
			d = &DependentTarget{ClassName: name}
			byClass[name] = d
			order = append(order, name)
		}
		d.TargetIDs = append(d.TargetIDs, id)
	}

	result := make([]DependentTarget, len(order))
	for i, name := range order {
		result[i] = *byClass[name]
	}
	return result
}

// formatStepsText renders a resolved path's steps as the report's path
// line: "Root[kind, id] -> Class.field -> Array[i] -> TargetClass@id".
func formatStepsText(p ResolvedPath) string {
	var b strings.Builder
	b.WriteString("Root[")
	b.WriteString(p.RootKind)
	b.WriteString(", ")
	b.WriteString(strconv.FormatUint(p.RootID, 10))
	b.WriteString("]")
	for _, s := range p.Steps {
		b.WriteString(" -> ")
		if s.ArrayIndex >= 0 {
			b.WriteString(s.ClassName)
			b.WriteString("[")
			b.WriteString(strconv.Itoa(s.ArrayIndex))
			b.WriteString("]")
		} else {
			b.WriteString(s.ClassName)
			b.WriteString(".")
			b.WriteString(s.FieldName)
		}
	}
	b.WriteString(" -> ")
	b.WriteString(p.TargetClass)
	b.WriteString("@")
	b.WriteString(strconv.FormatUint(p.TargetID, 10))
	return b.String()
}
