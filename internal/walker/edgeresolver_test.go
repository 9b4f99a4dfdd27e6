package walker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leaks-collector/internal/oracle"
)

type fakeInstance struct {
	className string
	fields    []oracle.FieldRef
}

func (f *fakeInstance) ClassName() string         { return f.className }
func (f *fakeInstance) Ancestry() []string        { return []string{f.className} }
func (f *fakeInstance) Fields() []oracle.FieldRef { return f.fields }

type fakeArray struct {
	className string
	elements  []uint64
}

func (a *fakeArray) ClassName() string   { return a.className }
func (a *fakeArray) Elements() []uint64 { return a.elements }

type fakeOracle struct {
	instances map[uint64]*fakeInstance
	arrays    map[uint64]*fakeArray
}

func (o *fakeOracle) Exists(id uint64) bool {
	_, inInst := o.instances[id]
	_, inArr := o.arrays[id]
	return inInst || inArr
}

func (o *fakeOracle) Kind(id uint64) oracle.ObjectKind {
	if _, ok := o.arrays[id]; ok {
		return oracle.KindObjectArray
	}
	return oracle.KindInstance
}

func (o *fakeOracle) AsInstance(id uint64) (oracle.Instance, bool) {
	v, ok := o.instances[id]
	return v, ok
}

func (o *fakeOracle) AsObjectArray(id uint64) (oracle.ObjectArray, bool) {
	v, ok := o.arrays[id]
	return v, ok
}

func (o *fakeOracle) AsClassObject(id uint64) (oracle.ClassObject, bool) { return nil, false }
func (o *fakeOracle) Instances(fn func(id uint64) bool)                  {}
func (o *fakeOracle) Roots(fn func(oracle.Root) bool)                    {}

func TestResolveChain_FieldsAndArrayIndex(t *testing.T) {
	oc := &fakeOracle{
		instances: map[uint64]*fakeInstance{
			1: {className: "Root", fields: []oracle.FieldRef{{Name: "next", Value: 2}}},
			3: {className: "Leaf"},
		},
		arrays: map[uint64]*fakeArray{
			2: {className: "java.lang.Object[]", elements: []uint64{0, 3}},
		},
	}

	// chain: root(1) -> array(2) -> leaf(3)
	steps := ResolveChain(oc, []uint64{1, 2, 3}, nil)

	assert := assert.New(t)
	assert.Len(steps, 2)
	assert.Equal("Root", steps[0].ClassName)
	assert.Equal("next", steps[0].FieldName)
	assert.Equal(-1, steps[0].ArrayIndex)

	assert.Equal("java.lang.Object[]", steps[1].ClassName)
	assert.Equal(1, steps[1].ArrayIndex)
}

func TestResolveChain_CollisionResolvesFirstDeclared(t *testing.T) {
	oc := &fakeOracle{
		instances: map[uint64]*fakeInstance{
			1: {className: "Holder", fields: []oracle.FieldRef{
				{Name: "first", Value: 2},
				{Name: "second", Value: 2},
			}},
			2: {className: "Leaf"},
		},
	}

	steps := ResolveChain(oc, []uint64{1, 2}, nil)
	if assert.Len(t, steps, 1) {
		assert.Equal(t, "first", steps[0].FieldName)
	}
}

func TestResolveChain_UnresolvableEdgeEmitsPlaceholder(t *testing.T) {
	oc := &fakeOracle{
		instances: map[uint64]*fakeInstance{
			1: {className: "Holder", fields: nil},
			2: {className: "Leaf"},
		},
	}

	steps := ResolveChain(oc, []uint64{1, 2}, nil)
	if assert.Len(t, steps, 1) {
		assert.Equal(t, unresolvedField, steps[0].FieldName)
	}
}

func TestResolveChain_SkipsSelfLoop(t *testing.T) {
	oc := &fakeOracle{instances: map[uint64]*fakeInstance{1: {className: "Holder"}}}
	steps := ResolveChain(oc, []uint64{1, 1}, nil)
	assert.Empty(t, steps)
}
