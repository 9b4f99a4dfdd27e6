package hprof

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaks-collector/internal/oracle"
)

// hprofBuilder assembles a minimal, valid 8-byte-id HPROF file byte-by-byte
// for loader tests, so the tests exercise the real binary format rather
// than a parsed-object fixture.
type hprofBuilder struct {
	buf     bytes.Buffer
	strings map[string]uint64
	nextID  uint64
}

func newHprofBuilder() *hprofBuilder {
	b := &hprofBuilder{strings: make(map[string]uint64), nextID: 1}
	b.buf.WriteString("JAVA PROFILE 1.0.2")
	b.buf.WriteByte(0)
	b.writeU32(8) // id size
	b.writeU64(0) // timestamp
	return b
}

func (b *hprofBuilder) writeU16(v uint16) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *hprofBuilder) writeU32(v uint32) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *hprofBuilder) writeU64(v uint64) { binary.Write(&b.buf, binary.BigEndian, v) }
func (b *hprofBuilder) writeID(v uint64)  { b.writeU64(v) }

func (b *hprofBuilder) intern(s string) uint64 {
	if id, ok := b.strings[s]; ok {
		return id
	}
	id := b.nextID
	b.nextID++
	b.strings[s] = id

	var rec bytes.Buffer
	binary.Write(&rec, binary.BigEndian, id)
	rec.WriteString(s)

	b.writeU8(TagString)
	b.writeU32(0)
	b.writeU32(uint32(rec.Len()))
	b.buf.Write(rec.Bytes())
	return id
}

func (b *hprofBuilder) writeU8(tag RecordTag) { b.buf.WriteByte(byte(tag)) }

func (b *hprofBuilder) loadClass(classID uint64, name string) {
	nameID := b.intern(name)
	var rec bytes.Buffer
	binary.Write(&rec, binary.BigEndian, uint32(0)) // serial
	binary.Write(&rec, binary.BigEndian, classID)
	binary.Write(&rec, binary.BigEndian, uint32(0)) // stack trace serial
	binary.Write(&rec, binary.BigEndian, nameID)

	b.writeU8(TagLoadClass)
	b.writeU32(0)
	b.writeU32(uint32(rec.Len()))
	b.buf.Write(rec.Bytes())
}

// fieldSpec is one instance field declaration for classDumpBytes.
type fieldSpec struct {
	name string
	typ  BasicType
}

func (b *hprofBuilder) classDumpBytes(classID, superClassID uint64, instanceFields []fieldSpec, staticValues map[string]uint64) []byte {
	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagClassDump))
	binary.Write(&rec, binary.BigEndian, classID)
	binary.Write(&rec, binary.BigEndian, uint32(0)) // stack trace serial
	binary.Write(&rec, binary.BigEndian, superClassID)
	binary.Write(&rec, binary.BigEndian, uint64(0)) // classloader
	binary.Write(&rec, binary.BigEndian, uint64(0)) // signers
	binary.Write(&rec, binary.BigEndian, uint64(0)) // protection domain
	binary.Write(&rec, binary.BigEndian, uint64(0)) // reserved1
	binary.Write(&rec, binary.BigEndian, uint64(0)) // reserved2
	binary.Write(&rec, binary.BigEndian, uint32(0)) // instance size
	binary.Write(&rec, binary.BigEndian, uint16(0)) // constant pool size

	staticNames := make([]string, 0, len(staticValues))
	for name := range staticValues {
		staticNames = append(staticNames, name)
	}
	binary.Write(&rec, binary.BigEndian, uint16(len(staticNames)))
	for _, name := range staticNames {
		binary.Write(&rec, binary.BigEndian, b.intern(name))
		rec.WriteByte(byte(TypeObject))
		binary.Write(&rec, binary.BigEndian, staticValues[name])
	}

	binary.Write(&rec, binary.BigEndian, uint16(len(instanceFields)))
	for _, f := range instanceFields {
		binary.Write(&rec, binary.BigEndian, b.intern(f.name))
		rec.WriteByte(byte(f.typ))
	}
	return rec.Bytes()
}

func (b *hprofBuilder) instanceDumpBytes(objID, classID uint64, fieldValues []uint64) []byte {
	var data bytes.Buffer
	for _, v := range fieldValues {
		binary.Write(&data, binary.BigEndian, v)
	}

	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagInstanceDump))
	binary.Write(&rec, binary.BigEndian, objID)
	binary.Write(&rec, binary.BigEndian, uint32(0))
	binary.Write(&rec, binary.BigEndian, classID)
	binary.Write(&rec, binary.BigEndian, uint32(data.Len()))
	rec.Write(data.Bytes())
	return rec.Bytes()
}

func (b *hprofBuilder) objectArrayDumpBytes(objID, classID uint64, elements []uint64) []byte {
	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagObjectArrayDump))
	binary.Write(&rec, binary.BigEndian, objID)
	binary.Write(&rec, binary.BigEndian, uint32(0))
	binary.Write(&rec, binary.BigEndian, uint32(len(elements)))
	binary.Write(&rec, binary.BigEndian, classID)
	for _, e := range elements {
		binary.Write(&rec, binary.BigEndian, e)
	}
	return rec.Bytes()
}

func (b *hprofBuilder) primitiveArrayDumpBytes(objID uint64, numElements int, elemType BasicType) []byte {
	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagPrimitiveArrayDump))
	binary.Write(&rec, binary.BigEndian, objID)
	binary.Write(&rec, binary.BigEndian, uint32(0))
	binary.Write(&rec, binary.BigEndian, uint32(numElements))
	rec.WriteByte(byte(elemType))
	rec.Write(make([]byte, numElements*BasicTypeSize(elemType, 8)))
	return rec.Bytes()
}

func (b *hprofBuilder) rootUnknownBytes(objID uint64) []byte {
	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagRootUnknown))
	binary.Write(&rec, binary.BigEndian, objID)
	return rec.Bytes()
}

func (b *hprofBuilder) rootJNIGlobalBytes(objID uint64) []byte {
	var rec bytes.Buffer
	rec.WriteByte(byte(HeapTagRootJNIGlobal))
	binary.Write(&rec, binary.BigEndian, objID)
	binary.Write(&rec, binary.BigEndian, uint64(0)) // JNI global ref id
	return rec.Bytes()
}

func (b *hprofBuilder) heapDump(subRecords ...[]byte) {
	var body bytes.Buffer
	for _, sr := range subRecords {
		body.Write(sr)
	}
	b.writeU8(TagHeapDump)
	b.writeU32(0)
	b.writeU32(uint32(body.Len()))
	b.buf.Write(body.Bytes())
}

func (b *hprofBuilder) writeTo(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "heap.hprof")
	require.NoError(t, os.WriteFile(path, b.buf.Bytes(), 0644))
	return path
}

func TestLoad_SimpleChain(t *testing.T) {
	dir := t.TempDir()
	b := newHprofBuilder()

	const (
		classHolder uint64 = 100
		classLeaf   uint64 = 101
		objRoot     uint64 = 1000
		objHolder   uint64 = 1001
		objLeaf     uint64 = 1002
	)

	b.loadClass(classHolder, "com.example.Holder")
	b.loadClass(classLeaf, "com.example.Leaf")

	b.heapDump(
		b.rootJNIGlobalBytes(objRoot),
		b.classDumpBytes(classHolder, 0, []fieldSpec{{"next", TypeObject}}, nil),
		b.classDumpBytes(classLeaf, 0, nil, nil),
		b.instanceDumpBytes(objRoot, classHolder, []uint64{objHolder}),
		b.instanceDumpBytes(objHolder, classHolder, []uint64{objLeaf}),
		b.instanceDumpBytes(objLeaf, classLeaf, nil),
	)

	path := b.writeTo(t, dir)
	store, err := Load(path)
	require.NoError(t, err)

	assert.True(t, store.Exists(objRoot))
	assert.True(t, store.Exists(objHolder))
	assert.True(t, store.Exists(objLeaf))
	assert.False(t, store.Exists(9999999))

	inst, ok := store.AsInstance(objHolder)
	require.True(t, ok)
	assert.Equal(t, "com.example.Holder", inst.ClassName())
	require.Len(t, inst.Fields(), 1)
	assert.Equal(t, "next", inst.Fields()[0].Name)
	assert.Equal(t, objLeaf, inst.Fields()[0].Value)

	var roots []oracle.Root
	store.Roots(func(r oracle.Root) bool {
		roots = append(roots, r)
		return true
	})
	require.Len(t, roots, 1)
	assert.Equal(t, objRoot, roots[0].ObjectID)
	assert.Equal(t, oracle.RootJNIGlobal, roots[0].Kind)
}

func TestLoad_ClassAncestryAndStaticFields(t *testing.T) {
	dir := t.TempDir()
	b := newHprofBuilder()

	const (
		classBase  uint64 = 200
		classChild uint64 = 201
		objStatic  uint64 = 2000
		objChild   uint64 = 2001
	)

	b.loadClass(classBase, "com.example.Base")
	b.loadClass(classChild, "com.example.Child")

	b.heapDump(
		b.classDumpBytes(classBase, 0, nil, nil),
		b.classDumpBytes(classChild, classBase, nil, map[string]uint64{"instanceCount": objStatic}),
		b.instanceDumpBytes(objStatic, classBase, nil),
		b.instanceDumpBytes(objChild, classChild, nil),
	)

	path := b.writeTo(t, dir)
	store, err := Load(path)
	require.NoError(t, err)

	inst, ok := store.AsInstance(objChild)
	require.True(t, ok)
	assert.Equal(t, []string{"com.example.Child", "com.example.Base"}, inst.Ancestry())

	cls, ok := store.AsClassObject(classChild)
	require.True(t, ok)
	require.Len(t, cls.StaticFields(), 1)
	assert.Equal(t, "instanceCount", cls.StaticFields()[0].Name)
	assert.Equal(t, objStatic, cls.StaticFields()[0].Value)
}

func TestLoad_ObjectArrayAndPrimitiveArray(t *testing.T) {
	dir := t.TempDir()
	b := newHprofBuilder()

	const (
		classElem    uint64 = 300
		objArray     uint64 = 3000
		objElem1     uint64 = 3001
		objElem2     uint64 = 3002
		objPrimArray uint64 = 3003
	)

	b.loadClass(classElem, "com.example.Elem")

	b.heapDump(
		b.classDumpBytes(classElem, 0, nil, nil),
		b.instanceDumpBytes(objElem1, classElem, nil),
		b.instanceDumpBytes(objElem2, classElem, nil),
		b.objectArrayDumpBytes(objArray, classElem, []uint64{objElem1, objElem2, 0}),
		b.primitiveArrayDumpBytes(objPrimArray, 4, TypeInt),
	)

	path := b.writeTo(t, dir)
	store, err := Load(path)
	require.NoError(t, err)

	arr, ok := store.AsObjectArray(objArray)
	require.True(t, ok)
	assert.Equal(t, "com.example.Elem", arr.ClassName())
	assert.Equal(t, []uint64{objElem1, objElem2, 0}, arr.Elements())

	assert.True(t, store.Exists(objPrimArray))
	assert.Equal(t, oracle.KindPrimitiveArray, store.Kind(objPrimArray))
}

func TestLoad_RejectsSegmentedDump(t *testing.T) {
	dir := t.TempDir()
	b := newHprofBuilder()
	b.writeU8(TagHeapDumpSegment)
	b.writeU32(0)
	b.writeU32(0)

	path := b.writeTo(t, dir)
	_, err := Load(path)
	require.Error(t, err)
}
