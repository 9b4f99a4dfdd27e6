package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaks-collector/internal/walker"
)

func TestGroupPaths_ArrayIndexErasureCollapsesGroup(t *testing.T) {
	pathA := ResolvedPath{
		TargetID:    10,
		TargetClass: "Leak",
		RootKind:    "JNI_GLOBAL",
		RootID:      1,
		Steps: []walker.EdgeStep{
			{ClassName: "java.lang.Object[]", ArrayIndex: 0},
		},
	}
	pathB := ResolvedPath{
		TargetID:    11,
		TargetClass: "Leak",
		RootKind:    "JNI_GLOBAL",
		RootID:      1,
		Steps: []walker.EdgeStep{
			{ClassName: "java.lang.Object[]", ArrayIndex: 7},
		},
	}

	groups := GroupPaths([]ResolvedPath{pathA, pathB})
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []uint64{10, 11}, groups[0].TargetIDs)
}

func TestGroupPaths_FieldStepsWithDifferentFieldsDoNotCollapse(t *testing.T) {
	pathA := ResolvedPath{
		TargetID: 10, TargetClass: "Leak", RootKind: "JNI_GLOBAL", RootID: 1,
		Steps: []walker.EdgeStep{{ClassName: "Holder", FieldName: "a", ArrayIndex: -1}},
	}
	pathB := ResolvedPath{
		TargetID: 11, TargetClass: "Leak", RootKind: "JNI_GLOBAL", RootID: 1,
		Steps: []walker.EdgeStep{{ClassName: "Holder", FieldName: "b", ArrayIndex: -1}},
	}

	groups := GroupPaths([]ResolvedPath{pathA, pathB})
	assert.Len(t, groups, 2)
}

func TestGroupPaths_SortsByTargetCountDescendingStable(t *testing.T) {
	small := ResolvedPath{TargetID: 1, TargetClass: "Small", RootKind: "JNI_GLOBAL", RootID: 1}
	big1 := ResolvedPath{TargetID: 2, TargetClass: "Big", RootKind: "JNI_GLOBAL", RootID: 1,
		Steps: []walker.EdgeStep{{ClassName: "H", FieldName: "f", ArrayIndex: -1}}}
	big2 := ResolvedPath{TargetID: 3, TargetClass: "Big", RootKind: "JNI_GLOBAL", RootID: 1,
		Steps: []walker.EdgeStep{{ClassName: "H", FieldName: "f", ArrayIndex: -1}}}

	groups := GroupPaths([]ResolvedPath{small, big1, big2})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].TargetIDs, 2)
	assert.Len(t, groups[1].TargetIDs, 1)
}

func TestGroupPaths_PreservesFirstSeenOrderOnTies(t *testing.T) {
	first := ResolvedPath{TargetID: 1, TargetClass: "First", RootKind: "JNI_GLOBAL", RootID: 1}
	second := ResolvedPath{TargetID: 2, TargetClass: "Second", RootKind: "JNI_GLOBAL", RootID: 1,
		Steps: []walker.EdgeStep{{ClassName: "H", FieldName: "f", ArrayIndex: -1}}}

	groups := GroupPaths([]ResolvedPath{first, second})
	require.Len(t, groups, 2)
	assert.Equal(t, "First", groups[0].Exemplar.TargetClass)
	assert.Equal(t, "Second", groups[1].Exemplar.TargetClass)
}

func TestGroupDependents_BucketsByClassNameInFirstSeenOrder(t *testing.T) {
	classNames := map[uint64]string{1: "A", 2: "B", 3: "A"}
	deps := GroupDependents(classNames, []uint64{1, 2, 3})

	require.Len(t, deps, 2)
	assert.Equal(t, "A", deps[0].ClassName)
	assert.ElementsMatch(t, []uint64{1, 3}, deps[0].TargetIDs)
	assert.Equal(t, "B", deps[1].ClassName)
	assert.ElementsMatch(t, []uint64{2}, deps[1].TargetIDs)
}
