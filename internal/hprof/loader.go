package hprof

import (
	"fmt"
	"io"
	"os"

	"github.com/leaks-collector/internal/oracle"
	appErrors "github.com/leaks-collector/pkg/errors"
)

// rootKindOf maps an HPROF heap-dump root sub-tag to the oracle's
// vocabulary. A heap-dump sub-tag with no entry here is not a root tag;
// readHeapDumpSubRecord rejects it as unrecognized. HeapTagRootUnknown maps
// to oracle.RootUnknown, which Strong() reports as non-strong.
var rootKindOf = map[HeapDumpTag]oracle.RootKind{
	HeapTagRootJNIGlobal:        oracle.RootJNIGlobal,
	HeapTagRootJNILocal:         oracle.RootJNILocal,
	HeapTagRootJavaFrame:        oracle.RootJavaFrame,
	HeapTagRootNativeStack:      oracle.RootNativeStack,
	HeapTagRootThreadBlock:      oracle.RootThreadBlock,
	HeapTagRootMonitorUsed:      oracle.RootMonitorUsed,
	HeapTagRootThreadObject:     oracle.RootThreadObject,
	HeapTagRootStickyClass:      oracle.RootStickyClass,
	HeapTagRootInternedString:   oracle.RootInternedString,
	HeapTagRootFinalizing:       oracle.RootFinalizing,
	HeapTagRootDebugger:         oracle.RootDebugger,
	HeapTagRootReferenceCleanup: oracle.RootReferenceCleanup,
	HeapTagRootJNIMonitor:       oracle.RootJNIMonitor,
	HeapTagRootUnreachable:      oracle.RootUnreachable,
	HeapTagRootUnknown:          oracle.RootUnknown,
}

type instanceData struct {
	classID uint64
	raw     []byte
}

type objectArrayData struct {
	classID  uint64
	elements []uint64
}

type classLayout struct {
	name           string
	superClassID   uint64
	instanceFields []FieldInfo
	staticFields   []StaticFieldInfo
}

// Store is an in-memory oracle.GraphOracle populated by Load. It holds
// every class, instance, object array, and primitive array in the dump, so
// memory use scales with heap size — the documented tradeoff of a bundled,
// non-streaming oracle implementation.
type Store struct {
	idSize          int
	layouts         map[uint64]*classLayout
	instances       map[uint64]instanceData
	instanceOrder   []uint64
	objectArrays    map[uint64]objectArrayData
	primitiveArrays map[uint64]struct{}
	roots           []oracle.Root

	Header *Header
}

var _ oracle.GraphOracle = (*Store)(nil)

// Load parses path as a standard, unsegmented HPROF dump and returns a
// Store implementing oracle.GraphOracle. Segmented dumps are rejected.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeInvalidInput, "cannot open snapshot", err)
	}
	defer f.Close()

	r := newReader(f)
	header, err := r.ReadHeader()
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeParseError, "cannot read snapshot header", err)
	}

	s := &Store{
		idSize:          header.IDSize,
		layouts:         make(map[uint64]*classLayout),
		instances:       make(map[uint64]instanceData),
		objectArrays:    make(map[uint64]objectArrayData),
		primitiveArrays: make(map[uint64]struct{}),
		Header:          header,
	}

	strings := make(map[uint64]string)
	classNameOf := make(map[uint64]uint64)

	for {
		tag, _, length, err := r.ReadRecordHeader()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, appErrors.Wrap(appErrors.CodeParseError, "cannot read record header", err)
		}

		switch tag {
		case TagString:
			if err := s.readStringRecord(r, length, strings); err != nil {
				return nil, err
			}
		case TagLoadClass:
			if err := s.readLoadClassRecord(r, classNameOf); err != nil {
				return nil, err
			}
		case TagHeapDump:
			if err := s.readHeapDump(r, int64(length), strings, classNameOf); err != nil {
				return nil, err
			}
		case TagHeapDumpSegment, TagHeapDumpEnd:
			return nil, appErrors.New(appErrors.CodeParseError, "segmented heap dumps are not supported by the bundled oracle")
		default:
			if err := r.Skip(int64(length)); err != nil {
				return nil, appErrors.Wrap(appErrors.CodeParseError, "cannot skip record", err)
			}
		}
	}

	for classID, layout := range s.layouts {
		if nameID, ok := classNameOf[classID]; ok {
			layout.name = strings[nameID]
		}
	}

	return s, nil
}

func (s *Store) readStringRecord(r *reader, length uint32, strings map[uint64]string) error {
	id, err := r.ReadID()
	if err != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read string record id", err)
	}
	remaining := int(length) - s.idSize
	if remaining < 0 {
		return appErrors.New(appErrors.CodeParseError, "string record shorter than its id")
	}
	raw, err := r.ReadBytes(remaining)
	if err != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read string record body", err)
	}
	strings[id] = string(raw)
	return nil
}

func (s *Store) readLoadClassRecord(r *reader, classNameOf map[uint64]uint64) error {
	if _, err := r.ReadUint32(); err != nil { // class serial number
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read load-class serial", err)
	}
	classID, err := r.ReadID()
	if err != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read load-class id", err)
	}
	if _, err := r.ReadUint32(); err != nil { // stack trace serial
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read load-class stack trace serial", err)
	}
	nameID, err := r.ReadID()
	if err != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot read load-class name id", err)
	}
	classNameOf[classID] = nameID
	return nil
}

// readHeapDump walks the HEAP DUMP record's sub-records. length bounds the
// record but every sub-record is self-describing, so it is tracked only to
// detect truncation.
func (s *Store) readHeapDump(r *reader, length int64, strings map[uint64]string, classNameOf map[uint64]uint64) error {
	var consumed int64
	for consumed < length {
		n, err := s.readHeapDumpSubRecord(r, strings, classNameOf)
		if err != nil {
			return err
		}
		consumed += n
	}
	return nil
}

func (s *Store) readHeapDumpSubRecord(r *reader, strings map[uint64]string, classNameOf map[uint64]uint64) (int64, error) {
	tagByte, err := r.ReadByte()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read heap dump sub-record tag", err)
	}
	tag := HeapDumpTag(tagByte)

	switch {
	case tag == HeapTagClassDump:
		return s.readClassDump(r, strings, classNameOf)
	case tag == HeapTagInstanceDump:
		return s.readInstanceDump(r)
	case tag == HeapTagObjectArrayDump:
		return s.readObjectArrayDump(r)
	case tag == HeapTagPrimitiveArrayDump:
		return s.readPrimitiveArrayDump(r)
	case isRootTag(tag):
		return s.readRoot(r, tag)
	default:
		return 0, appErrors.New(appErrors.CodeParseError, fmt.Sprintf("unrecognized heap dump sub-record tag 0x%02x", tagByte))
	}
}

func isRootTag(tag HeapDumpTag) bool {
	_, ok := rootKindOf[tag]
	return ok
}

func (s *Store) readRoot(r *reader, tag HeapDumpTag) (int64, error) {
	idSize := int64(s.idSize)
	objID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read root object id", err)
	}
	consumed := 1 + idSize

	// Root sub-records carry extra fixed-size fields beyond the object id;
	// the core oracle has no use for thread id / frame index, so they are
	// skipped rather than modeled.
	var extra int64
	switch tag {
	case HeapTagRootJNIGlobal:
		extra = idSize // JNI global ref id
	case HeapTagRootJNILocal, HeapTagRootJavaFrame:
		extra = 4 + 4 // thread serial, frame number
	case HeapTagRootNativeStack, HeapTagRootThreadBlock:
		extra = 4 // thread serial
	case HeapTagRootThreadObject:
		extra = 4 + 4 // thread serial, stack trace serial
	case HeapTagRootJNIMonitor:
		extra = 4 + 4 // thread serial, frame depth
	case HeapTagRootStickyClass, HeapTagRootMonitorUsed, HeapTagRootUnknown,
		HeapTagRootInternedString, HeapTagRootFinalizing, HeapTagRootDebugger,
		HeapTagRootReferenceCleanup, HeapTagRootUnreachable:
		extra = 0
	}
	if extra > 0 {
		if err := r.Skip(extra); err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip root sub-record tail", err)
		}
	}

	kind, ok := rootKindOf[tag]
	if !ok {
		kind = oracle.RootUnknown
	}
	s.roots = append(s.roots, oracle.Root{ObjectID: objID, Kind: kind})
	return consumed + extra, nil
}

func (s *Store) readClassDump(r *reader, strings map[uint64]string, classNameOf map[uint64]uint64) (int64, error) {
	idSize := int64(s.idSize)
	classID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read class dump id", err)
	}
	consumed := 1 + idSize

	if err := r.Skip(4); err != nil { // stack trace serial
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip class dump stack trace serial", err)
	}
	consumed += 4

	superClassID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read super class id", err)
	}
	consumed += idSize

	if err := r.Skip(idSize * 4); err != nil { // classloader, signers, protection domain, reserved1
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip class dump fixed ids", err)
	}
	consumed += idSize * 4
	if err := r.Skip(idSize); err != nil { // reserved2
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip class dump reserved2", err)
	}
	consumed += idSize

	if err := r.Skip(4); err != nil { // instance size
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip class dump instance size", err)
	}
	consumed += 4

	cpSize, err := r.ReadUint16()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read constant pool size", err)
	}
	consumed += 2
	for i := 0; i < int(cpSize); i++ {
		if err := r.Skip(2); err != nil { // constant pool index
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip constant pool index", err)
		}
		consumed += 2
		typeByte, err := r.ReadByte()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read constant pool entry type", err)
		}
		consumed++
		valueSize := int64(BasicTypeSize(BasicType(typeByte), s.idSize))
		if err := r.Skip(valueSize); err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip constant pool entry value", err)
		}
		consumed += valueSize
	}

	staticCount, err := r.ReadUint16()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read static field count", err)
	}
	consumed += 2

	staticFields := make([]StaticFieldInfo, 0, staticCount)
	for i := 0; i < int(staticCount); i++ {
		nameID, err := r.ReadID()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read static field name id", err)
		}
		consumed += idSize
		typeByte, err := r.ReadByte()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read static field type", err)
		}
		consumed++
		value, err := r.ReadValue(BasicType(typeByte))
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read static field value", err)
		}
		consumed += int64(BasicTypeSize(BasicType(typeByte), s.idSize))
		staticFields = append(staticFields, StaticFieldInfo{
			Name:  strings[nameID],
			Type:  BasicType(typeByte),
			Value: value,
		})
	}

	instanceCount, err := r.ReadUint16()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance field count", err)
	}
	consumed += 2

	instanceFields := make([]FieldInfo, 0, instanceCount)
	for i := 0; i < int(instanceCount); i++ {
		nameID, err := r.ReadID()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance field name id", err)
		}
		consumed += idSize
		typeByte, err := r.ReadByte()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance field type", err)
		}
		consumed++
		instanceFields = append(instanceFields, FieldInfo{
			Name: strings[nameID],
			Type: BasicType(typeByte),
		})
	}

	name := ""
	if nameID, ok := classNameOf[classID]; ok {
		name = strings[nameID]
	}
	s.layouts[classID] = &classLayout{
		name:           name,
		superClassID:   superClassID,
		instanceFields: instanceFields,
		staticFields:   staticFields,
	}

	return consumed, nil
}

func (s *Store) readInstanceDump(r *reader) (int64, error) {
	idSize := int64(s.idSize)
	objID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance dump id", err)
	}
	consumed := 1 + idSize

	if err := r.Skip(4); err != nil { // stack trace serial
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip instance dump stack trace serial", err)
	}
	consumed += 4

	classID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance dump class id", err)
	}
	consumed += idSize

	dataSize, err := r.ReadUint32()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance dump data size", err)
	}
	consumed += 4

	raw, err := r.ReadBytes(int(dataSize))
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read instance dump field data", err)
	}
	consumed += int64(dataSize)

	s.instances[objID] = instanceData{classID: classID, raw: raw}
	s.instanceOrder = append(s.instanceOrder, objID)
	return consumed, nil
}

func (s *Store) readObjectArrayDump(r *reader) (int64, error) {
	idSize := int64(s.idSize)
	objID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read object array dump id", err)
	}
	consumed := 1 + idSize

	if err := r.Skip(4); err != nil { // stack trace serial
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip object array stack trace serial", err)
	}
	consumed += 4

	numElements, err := r.ReadUint32()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read object array element count", err)
	}
	consumed += 4

	classID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read object array class id", err)
	}
	consumed += idSize

	elements := make([]uint64, numElements)
	for i := range elements {
		elements[i], err = r.ReadID()
		if err != nil {
			return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read object array element", err)
		}
		consumed += idSize
	}

	s.objectArrays[objID] = objectArrayData{classID: classID, elements: elements}
	return consumed, nil
}

func (s *Store) readPrimitiveArrayDump(r *reader) (int64, error) {
	idSize := int64(s.idSize)
	objID, err := r.ReadID()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read primitive array dump id", err)
	}
	consumed := 1 + idSize

	if err := r.Skip(4); err != nil { // stack trace serial
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip primitive array stack trace serial", err)
	}
	consumed += 4

	numElements, err := r.ReadUint32()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read primitive array element count", err)
	}
	consumed += 4

	typeByte, err := r.ReadByte()
	if err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read primitive array element type", err)
	}
	consumed++

	elemSize := BasicTypeSize(BasicType(typeByte), s.idSize)
	if err := r.Skip(int64(numElements) * int64(elemSize)); err != nil {
		return 0, appErrors.Wrap(appErrors.CodeParseError, "cannot skip primitive array contents", err)
	}
	consumed += int64(numElements) * int64(elemSize)

	s.primitiveArrays[objID] = struct{}{}
	return consumed, nil
}
