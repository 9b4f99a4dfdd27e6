// Package oracle defines the read-only heap-access abstraction the path-discovery
// core depends on. The core never parses a snapshot itself; it asks a GraphOracle.
package oracle

// ObjectKind tags the polymorphic variant a heap node can be.
type ObjectKind int

const (
	KindInstance ObjectKind = iota
	KindObjectArray
	KindClassObject
	KindPrimitiveArray
)

// RootKind enumerates the GC-root kinds the oracle can report. The strong
// kinds are the ones the core treats as valid stopping points; the rest
// exist only so the oracle can classify and exclude them.
type RootKind string

const (
	RootJNIGlobal        RootKind = "JNI_GLOBAL"
	RootJNILocal         RootKind = "JNI_LOCAL"
	RootJavaFrame        RootKind = "JAVA_FRAME"
	RootNativeStack      RootKind = "NATIVE_STACK"
	RootThreadBlock      RootKind = "THREAD_BLOCK"
	RootMonitorUsed      RootKind = "MONITOR_USED"
	RootThreadObject     RootKind = "THREAD_OBJECT"
	RootJNIMonitor       RootKind = "JNI_MONITOR"
	RootReferenceCleanup RootKind = "REFERENCE_CLEANUP"
	RootVMInternal       RootKind = "VM_INTERNAL"

	RootStickyClass    RootKind = "STICKY_CLASS"
	RootFinalizing     RootKind = "FINALIZING"
	RootDebugger       RootKind = "DEBUGGER"
	RootUnreachable    RootKind = "UNREACHABLE"
	RootInternedString RootKind = "INTERNED_STRING"
	RootUnknown        RootKind = "UNKNOWN"
)

// Strong reports whether the root kind keeps its object alive for the
// purposes of path discovery. Non-strong kinds are excluded entirely from
// the GC-Root Set (see the Leaf Filter's "Excluded kinds" rule).
func (k RootKind) Strong() bool {
	switch k {
	case RootJNIGlobal, RootJNILocal, RootJavaFrame, RootNativeStack,
		RootThreadBlock, RootMonitorUsed, RootThreadObject,
		RootJNIMonitor, RootReferenceCleanup, RootVMInternal:
		return true
	default:
		return false
	}
}

// Root pairs a root object id with the kind that roots it.
type Root struct {
	ObjectID uint64
	Kind     RootKind
}

// FieldRef is one declared-field or static-field slot on an instance or
// class object: a name and the object id it currently holds (zero if null
// or not an object-typed field).
type FieldRef struct {
	Name  string
	Value uint64
}

// Instance is the capability view the oracle returns for an instance object.
type Instance interface {
	ClassName() string
	// Ancestry returns the instance's class and every superclass name, in
	// subclass-to-superclass order, for the Leaf Filter's weak-reference
	// hierarchy check.
	Ancestry() []string
	// Fields returns declared fields in declaration order. Synthetic/JVM
	// internal fields (name begins with '<') are still included here; the
	// Reverse Index Builder is responsible for skipping them.
	Fields() []FieldRef
}

// ObjectArray is the capability view for an object array.
type ObjectArray interface {
	ClassName() string
	// Elements returns element object ids in array order; zero means null.
	Elements() []uint64
}

// ClassObject is the capability view for per-class metadata.
type ClassObject interface {
	ClassName() string
	StaticFields() []FieldRef
}

// GraphOracle is read-only access to a parsed heap snapshot. Implementations
// must support repeated calls to the As* accessors for the same id.
type GraphOracle interface {
	// Exists reports whether id names a live object in the snapshot.
	Exists(id uint64) bool

	// Kind returns the polymorphic kind of id. Behavior is undefined if
	// Exists(id) is false.
	Kind(id uint64) ObjectKind

	// AsInstance, AsObjectArray, AsClassObject narrow id to its capability
	// view. Callers must check Kind first; calling the wrong accessor
	// returns (nil, false).
	AsInstance(id uint64) (Instance, bool)
	AsObjectArray(id uint64) (ObjectArray, bool)
	AsClassObject(id uint64) (ClassObject, bool)

	// Instances iterates every plain instance object id in the snapshot
	// (never object arrays, class objects, or primitive arrays) in stable
	// scan order — the set the Target Selector scans to resolve
	// --target-class and the default target class list against.
	Instances(fn func(id uint64) bool)

	// Roots iterates every GC root the snapshot declares, including the
	// non-strong kinds; callers filter with RootKind.Strong.
	Roots(fn func(Root) bool)
}
