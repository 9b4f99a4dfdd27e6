package hprof

import "github.com/leaks-collector/internal/oracle"

// Exists reports whether id names a class object, instance, object array,
// or primitive array present in the dump.
func (s *Store) Exists(id uint64) bool {
	if _, ok := s.layouts[id]; ok {
		return true
	}
	if _, ok := s.instances[id]; ok {
		return true
	}
	if _, ok := s.objectArrays[id]; ok {
		return true
	}
	if _, ok := s.primitiveArrays[id]; ok {
		return true
	}
	return false
}

// Kind classifies id. Callers are expected to have checked Exists first;
// an id present in none of the stores reports oracle.KindInstance as a
// harmless default rather than panicking.
func (s *Store) Kind(id uint64) oracle.ObjectKind {
	if _, ok := s.layouts[id]; ok {
		return oracle.KindClassObject
	}
	if _, ok := s.objectArrays[id]; ok {
		return oracle.KindObjectArray
	}
	if _, ok := s.primitiveArrays[id]; ok {
		return oracle.KindPrimitiveArray
	}
	return oracle.KindInstance
}

func (s *Store) AsInstance(id uint64) (oracle.Instance, bool) {
	data, ok := s.instances[id]
	if !ok {
		return nil, false
	}
	return &instanceView{store: s, id: id, data: data}, true
}

func (s *Store) AsObjectArray(id uint64) (oracle.ObjectArray, bool) {
	data, ok := s.objectArrays[id]
	if !ok {
		return nil, false
	}
	return &objectArrayView{store: s, data: data}, true
}

func (s *Store) AsClassObject(id uint64) (oracle.ClassObject, bool) {
	layout, ok := s.layouts[id]
	if !ok {
		return nil, false
	}
	return &classObjectView{layout: layout}, true
}

// Instances calls fn with every instance object id (excluding class
// objects, object arrays, and primitive arrays), in the order their
// instance dump records appeared in the snapshot, until fn returns false.
func (s *Store) Instances(fn func(id uint64) bool) {
	for _, id := range s.instanceOrder {
		if !fn(id) {
			return
		}
	}
}

// Roots calls fn with every GC root recorded in the dump until fn returns
// false.
func (s *Store) Roots(fn func(oracle.Root) bool) {
	for _, r := range s.roots {
		if !fn(r) {
			return
		}
	}
}

// Stats reports the object-count breakdown used by the Reporter's header
// line. It is specific to the bundled oracle, not part of oracle.GraphOracle.
type Stats struct {
	Classes         int
	Instances       int
	ObjectArrays    int
	PrimitiveArrays int
	Roots           int
}

// Stats returns the current object-count breakdown.
func (s *Store) Stats() Stats {
	return Stats{
		Classes:         len(s.layouts),
		Instances:       len(s.instances),
		ObjectArrays:    len(s.objectArrays),
		PrimitiveArrays: len(s.primitiveArrays),
		Roots:           len(s.roots),
	}
}

type instanceView struct {
	store *Store
	id    uint64
	data  instanceData
}

func (v *instanceView) ClassName() string {
	if layout, ok := v.store.layouts[v.data.classID]; ok {
		return layout.name
	}
	return ""
}

// Ancestry returns the instance's class name followed by every superclass
// name, root class last — the order the Leaf Filter's weak-reference check
// scans in.
func (v *instanceView) Ancestry() []string {
	var chain []string
	classID := v.data.classID
	for classID != 0 {
		layout, ok := v.store.layouts[classID]
		if !ok {
			break
		}
		chain = append(chain, layout.name)
		classID = layout.superClassID
	}
	return chain
}

// Fields decodes the instance's raw field bytes into object-reference
// FieldRefs. HPROF lays out instance data with the object's own declared
// fields first, then its superclass's, and so on up the hierarchy; only
// TypeObject fields can be references, so non-object fields are decoded
// only far enough to compute their size and advance the cursor.
func (v *instanceView) Fields() []oracle.FieldRef {
	var refs []oracle.FieldRef
	offset := 0
	classID := v.data.classID
	idSize := v.store.idSize

	for classID != 0 {
		layout, ok := v.store.layouts[classID]
		if !ok {
			break
		}
		for _, f := range layout.instanceFields {
			size := BasicTypeSize(f.Type, idSize)
			if offset+size > len(v.data.raw) {
				return refs
			}
			if f.Type == TypeObject {
				refs = append(refs, oracle.FieldRef{Name: f.Name, Value: decodeID(v.data.raw[offset:offset+size], idSize)})
			}
			offset += size
		}
		classID = layout.superClassID
	}
	return refs
}

func decodeID(b []byte, idSize int) uint64 {
	var v uint64
	for i := 0; i < idSize && i < len(b); i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

type objectArrayView struct {
	store *Store
	data  objectArrayData
}

func (v *objectArrayView) ClassName() string {
	if layout, ok := v.store.layouts[v.data.classID]; ok {
		return layout.name
	}
	return ""
}

func (v *objectArrayView) Elements() []uint64 {
	return v.data.elements
}

type classObjectView struct {
	layout *classLayout
}

func (v *classObjectView) ClassName() string {
	return v.layout.name
}

func (v *classObjectView) StaticFields() []oracle.FieldRef {
	var refs []oracle.FieldRef
	for _, f := range v.layout.staticFields {
		if f.Type == TypeObject {
			refs = append(refs, oracle.FieldRef{Name: f.Name, Value: f.Value})
		}
	}
	return refs
}
