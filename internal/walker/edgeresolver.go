package walker

import (
	"github.com/leaks-collector/internal/oracle"
	"github.com/leaks-collector/pkg/utils"
)

// EdgeStep is one resolved hop in a finalized path: either a field step
// (ArrayIndex < 0) or an array-element step.
type EdgeStep struct {
	ClassName  string
	FieldName  string
	ArrayIndex int // -1 for a field step
}

const unresolvedField = "?"

// ResolveChain reopens every consecutive (parent, child) pair in a finalized
// id chain (root first, then the reversed target-side ids, then the target
// itself) and recovers the field name or array index that produced the
// edge. Unresolvable edges are emitted as (class_name, "?") and logged.
func ResolveChain(oc oracle.GraphOracle, chain []uint64, logger utils.Logger) []EdgeStep {
	steps := make([]EdgeStep, 0, len(chain))
	for i := 0; i < len(chain)-1; i++ {
		parent, child := chain[i], chain[i+1]
		if parent == child {
			continue
		}
		steps = append(steps, resolveEdge(oc, parent, child, logger))
	}
	return steps
}

func resolveEdge(oc oracle.GraphOracle, parent, child uint64, logger utils.Logger) EdgeStep {
	if !oc.Exists(parent) {
		return EdgeStep{ClassName: "?", FieldName: unresolvedField, ArrayIndex: -1}
	}

	switch oc.Kind(parent) {
	case oracle.KindInstance:
		inst, ok := oc.AsInstance(parent)
		if !ok {
			break
		}
		for _, f := range inst.Fields() {
			if f.Value == child {
				return EdgeStep{ClassName: inst.ClassName(), FieldName: f.Name, ArrayIndex: -1}
			}
		}
		if logger != nil {
			logger.Warn("could not resolve field from %s to child object, emitting placeholder", inst.ClassName())
		}
		return EdgeStep{ClassName: inst.ClassName(), FieldName: unresolvedField, ArrayIndex: -1}

	case oracle.KindObjectArray:
		arr, ok := oc.AsObjectArray(parent)
		if !ok {
			break
		}
		for i, elem := range arr.Elements() {
			if elem == child {
				return EdgeStep{ClassName: arr.ClassName(), ArrayIndex: i}
			}
		}
		if logger != nil {
			logger.Warn("could not resolve array index from %s to child object, emitting placeholder", arr.ClassName())
		}
		return EdgeStep{ClassName: arr.ClassName(), FieldName: unresolvedField, ArrayIndex: -1}

	case oracle.KindClassObject:
		cls, ok := oc.AsClassObject(parent)
		if !ok {
			break
		}
		for _, f := range cls.StaticFields() {
			if f.Value == child {
				return EdgeStep{ClassName: cls.ClassName(), FieldName: f.Name, ArrayIndex: -1}
			}
		}
		if logger != nil {
			logger.Warn("could not resolve static field from %s to child object, emitting placeholder", cls.ClassName())
		}
		return EdgeStep{ClassName: cls.ClassName(), FieldName: unresolvedField, ArrayIndex: -1}
	}

	return EdgeStep{ClassName: "?", FieldName: unresolvedField, ArrayIndex: -1}
}
