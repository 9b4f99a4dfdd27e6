package heap

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/leaks-collector/internal/oracle"
)

// leafCategory is the outcome of classifying a single class name. It is
// deliberately narrower than a general-purpose JDK/framework/business
// taxonomy (that belongs to a presentation layer, not the path-discovery
// core) — the walker only ever needs to know whether a node can be skipped
// as a child or as a parent.
type leafCategory struct {
	leafChild  bool
	leafParent bool
}

// LeafFilter classifies objects as "carries no interesting inbound path"
// (excluded as reverse-index children) or as reference types that must not
// be walked through (excluded as reverse-index parents).
//
// The class-name sets are fixed at construction; NewLeafFilter takes no
// options and there is no way to extend them.
type LeafFilter struct {
	leafInstanceClasses map[string]bool
	leafArrayClasses    map[string]bool
	weakRefAncestors    map[string]bool

	cache *lru.Cache[string, leafCategory]
}

const defaultLeafFilterCacheSize = 16384

// NewLeafFilter builds a LeafFilter with the fixed class sets from §4.1:
// String and the eight boxed primitives as leaf instances, String[] as the
// sole leaf array class, and the weak/soft/phantom/finalizer/cleaner
// reference hierarchy excluded as parents.
func NewLeafFilter() *LeafFilter {
	cache, err := lru.New[string, leafCategory](defaultLeafFilterCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which never
		// happens with the constant above.
		panic(err)
	}
	return &LeafFilter{
		leafInstanceClasses: map[string]bool{
			"java.lang.String":          true,
			"java.lang.Byte":            true,
			"java.lang.Short":           true,
			"java.lang.Integer":         true,
			"java.lang.Long":            true,
			"java.lang.Float":           true,
			"java.lang.Double":          true,
			"java.lang.Boolean":         true,
			"java.lang.Character":       true,
		},
		leafArrayClasses: map[string]bool{
			"java.lang.String[]": true,
		},
		weakRefAncestors: map[string]bool{
			"java.lang.ref.WeakReference":      true,
			"java.lang.ref.SoftReference":      true,
			"java.lang.ref.PhantomReference":   true,
			"java.lang.ref.FinalizerReference": true,
			"sun.misc.Cleaner":                 true,
			"jdk.internal.ref.Cleaner":         true,
		},
		cache: cache,
	}
}

// IsLeafInstanceClass reports whether className is String or a boxed
// primitive — excluded both as a reverse-index child and as a parent.
func (f *LeafFilter) IsLeafInstanceClass(className string) bool {
	return f.leafInstanceClasses[className]
}

// IsLeafArrayClass reports whether className is String[] — excluded as a
// parent (but, unlike instances, still indexable as a child; §4.2 only
// skips leaf array classes when they would themselves become a parent).
func (f *LeafFilter) IsLeafArrayClass(className string) bool {
	return f.leafArrayClasses[className]
}

// IsWeakReferenceHierarchy reports whether any class in ancestry (as
// returned by oracle.Instance.Ancestry, subclass-first) is one of
// WeakReference, SoftReference, PhantomReference, FinalizerReference, or
// Cleaner.
func (f *LeafFilter) IsWeakReferenceHierarchy(ancestry []string) bool {
	for _, name := range ancestry {
		if f.weakRefAncestors[name] {
			return true
		}
	}
	return false
}

// SkipAsParentInstance reports whether an instance's outgoing references
// must be ignored entirely by the Reverse Index Builder: it is a leaf
// instance class or sits in the weak-reference hierarchy.
func (f *LeafFilter) SkipAsParentInstance(inst oracle.Instance) bool {
	name := inst.ClassName()
	if cat, ok := f.cache.Get(name); ok {
		return cat.leafParent
	}
	skip := f.leafInstanceClasses[name] || f.IsWeakReferenceHierarchy(inst.Ancestry())
	f.cache.Add(name, leafCategory{leafChild: f.leafInstanceClasses[name], leafParent: skip})
	return skip
}

// SkipAsParentArray reports whether an object array's elements must be
// ignored by the Reverse Index Builder: its class is the leaf array class.
func (f *LeafFilter) SkipAsParentArray(arr oracle.ObjectArray) bool {
	return f.leafArrayClasses[arr.ClassName()]
}

// IsLeafChild reports whether id, of the given class name and kind, can
// never be a useful reverse-index child — i.e. it should be silently
// dropped rather than indexed. Primitive arrays are always leaf children;
// leaf instance classes (String, boxed primitives) are leaf children too.
func (f *LeafFilter) IsLeafChild(kind oracle.ObjectKind, className string) bool {
	switch kind {
	case oracle.KindPrimitiveArray:
		return true
	case oracle.KindInstance:
		return f.leafInstanceClasses[className]
	default:
		return false
	}
}

// RootKindIsStrong reports whether a GC root kind is one of the strong
// kinds the walker may stop at, per §4.1's root-kind table.
func RootKindIsStrong(kind oracle.RootKind) bool {
	return kind.Strong()
}
