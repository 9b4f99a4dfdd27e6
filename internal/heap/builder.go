package heap

import (
	"context"

	"github.com/leaks-collector/internal/oracle"
	"github.com/leaks-collector/pkg/collections"
	appErrors "github.com/leaks-collector/pkg/errors"
	"github.com/leaks-collector/pkg/utils"
)

// BuildReverseIndex performs the forward breadth-first sweep from the union
// of strong GC root ids described in §4.2: for every traversed outgoing
// reference parent -> child, it records child -> parent in the returned
// ReverseIndex. Fields and array indices are not stored here; the Edge
// Resolver recovers them later, only for surviving paths.
//
// The sweep also returns the GC-Root Set actually walked (strong kinds
// only) so callers don't need a second pass over oracle.Roots.
func BuildReverseIndex(ctx context.Context, oc oracle.GraphOracle, filter *LeafFilter, logger utils.Logger) (*ReverseIndex, *RootSet, error) {
	roots := CollectRoots(oc)
	rootKinds := roots.kinds

	queue := collections.NewQueue[uint64](1024)
	visited := make(map[uint64]bool)
	for _, id := range roots.IDs() {
		visited[id] = true
		queue.Enqueue(id)
	}

	parents := make(map[uint64][]uint64, len(rootKinds)*4)

	enqueueChild := func(parentID, childID uint64) {
		if childID == 0 || !oc.Exists(childID) {
			return
		}
		switch oc.Kind(childID) {
		case oracle.KindInstance:
			if inst, ok := oc.AsInstance(childID); ok && filter.IsLeafChild(oracle.KindInstance, inst.ClassName()) {
				return
			}
		case oracle.KindPrimitiveArray:
			return
		}
		parents[childID] = append(parents[childID], parentID)
		if !visited[childID] {
			visited[childID] = true
			queue.Enqueue(childID)
		}
	}

	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, appErrors.Wrap(appErrors.CodeParseError, "reverse index sweep cancelled", err)
		}
		id, ok := queue.Dequeue()
		if !ok {
			break
		}
		processed++

		switch oc.Kind(id) {
		case oracle.KindInstance:
			inst, ok := oc.AsInstance(id)
			if !ok {
				continue
			}
			if filter.SkipAsParentInstance(inst) {
				continue
			}
			for _, field := range inst.Fields() {
				if isSyntheticField(field.Name) {
					continue
				}
				enqueueChild(id, field.Value)
			}

		case oracle.KindObjectArray:
			arr, ok := oc.AsObjectArray(id)
			if !ok {
				continue
			}
			if filter.SkipAsParentArray(arr) {
				continue
			}
			for _, elem := range arr.Elements() {
				enqueueChild(id, elem)
			}

		case oracle.KindClassObject:
			cls, ok := oc.AsClassObject(id)
			if !ok {
				continue
			}
			for _, field := range cls.StaticFields() {
				if isSyntheticField(field.Name) {
					continue
				}
				enqueueChild(id, field.Value)
			}

		case oracle.KindPrimitiveArray:
			// No outgoing references.
		}
	}

	logger.Debug("reverse index built: %d nodes visited, %d children indexed", processed, len(parents))
	return NewReverseIndex(parents), roots, nil
}

// CollectRoots scans the oracle's GC roots into a RootSet, preserving the
// oracle's own Roots enumeration order. It is cheap relative to the full
// reverse-index sweep, so callers on a reverse-index cache hit can call it
// directly instead of rebuilding the index just to recover the root set.
func CollectRoots(oc oracle.GraphOracle) *RootSet {
	kinds := make(map[uint64]string)
	var order []uint64
	oc.Roots(func(r oracle.Root) bool {
		if !RootKindIsStrong(r.Kind) {
			return true
		}
		if _, ok := kinds[r.ObjectID]; !ok {
			kinds[r.ObjectID] = string(r.Kind)
			order = append(order, r.ObjectID)
		}
		return true
	})
	return NewOrderedRootSet(kinds, order)
}

// isSyntheticField reports whether a declared-field name is a synthetic or
// JVM-internal field, excluded from both the instance and class-object
// sweep per §4.2.
func isSyntheticField(name string) bool {
	return len(name) > 0 && name[0] == '<'
}
