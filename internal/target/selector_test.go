package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaks-collector/internal/oracle"
)

type fakeInstance struct{ className string }

func (f *fakeInstance) ClassName() string          { return f.className }
func (f *fakeInstance) Ancestry() []string          { return []string{f.className} }
func (f *fakeInstance) Fields() []oracle.FieldRef   { return nil }

type fakeOracle struct {
	instances map[uint64]*fakeInstance
	order     []uint64
}

func (o *fakeOracle) Exists(id uint64) bool { _, ok := o.instances[id]; return ok }
func (o *fakeOracle) Kind(id uint64) oracle.ObjectKind { return oracle.KindInstance }
func (o *fakeOracle) AsInstance(id uint64) (oracle.Instance, bool) {
	v, ok := o.instances[id]
	return v, ok
}
func (o *fakeOracle) AsObjectArray(id uint64) (oracle.ObjectArray, bool) { return nil, false }
func (o *fakeOracle) AsClassObject(id uint64) (oracle.ClassObject, bool) { return nil, false }
func (o *fakeOracle) Instances(fn func(id uint64) bool) {
	for _, id := range o.order {
		if !fn(id) {
			return
		}
	}
}
func (o *fakeOracle) Roots(fn func(oracle.Root) bool) {}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		instances: map[uint64]*fakeInstance{
			1: {className: "com.example.LeakyCache"},
			2: {className: "com.example.Healthy"},
			3: {className: "com.example.LeakyBuffer"},
		},
		order: []uint64{1, 2, 3},
	}
}

func TestResolve_TargetClassSubstringMatch(t *testing.T) {
	oc := newFakeOracle()
	ids, err := Resolve(oc, Selection{TargetClasses: []string{"Leaky"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids)
}

func TestResolve_TargetIDExplicit(t *testing.T) {
	oc := newFakeOracle()
	ids, err := Resolve(oc, Selection{TargetIDs: []string{"2", "0x3"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, ids)
}

func TestResolve_TargetIDNonexistentErrors(t *testing.T) {
	oc := newFakeOracle()
	_, err := Resolve(oc, Selection{TargetIDs: []string{"99"}}, nil)
	assert.Error(t, err)
}

func TestResolve_EmptySelectionFallsBackToDefaultClasses(t *testing.T) {
	oc := newFakeOracle()
	ids, err := Resolve(oc, Selection{}, []string{"Healthy"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids)
}

func TestResolve_EmptySelectionNoDefaultsSelectsNothing(t *testing.T) {
	oc := newFakeOracle()
	ids, err := Resolve(oc, Selection{}, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolve_DuplicateIDsKeptOnce(t *testing.T) {
	oc := newFakeOracle()
	ids, err := Resolve(oc, Selection{TargetClasses: []string{"Leaky"}, TargetIDs: []string{"1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 3}, ids)
}
