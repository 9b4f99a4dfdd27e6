package heap

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/leaks-collector/pkg/compression"
	appErrors "github.com/leaks-collector/pkg/errors"
	"github.com/leaks-collector/pkg/utils"
)

// cacheMagic identifies a reverse-index cache envelope on disk.
const cacheMagic uint32 = 0x52584c43 // "RXLC"

// cacheVersion is bumped whenever the envelope layout changes.
const cacheVersion uint32 = 1

// compression-type tags, stored one byte after the version, mirroring the
// teacher's serial_serializer.go compression-byte convention.
const (
	compressTagZstd byte = 0
	compressTagGzip byte = 1
	compressTagNone byte = 2
)

func compressTagFor(name string) (byte, error) {
	switch name {
	case "zstd":
		return compressTagZstd, nil
	case "gzip":
		return compressTagGzip, nil
	case "none":
		return compressTagNone, nil
	default:
		return 0, fmt.Errorf("unknown compression type name: %q", name)
	}
}

func compressorForTag(tag byte) (compression.Compressor, error) {
	switch tag {
	case compressTagZstd:
		return compression.New(compression.TypeZstd, compression.LevelDefault)
	case compressTagGzip:
		return compression.New(compression.TypeGzip, compression.LevelDefault)
	case compressTagNone:
		return compression.New(compression.TypeNone, compression.LevelDefault)
	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}

// fingerprintWindow is the number of leading bytes of the snapshot hashed to
// produce the cache fingerprint. Hashing the whole snapshot would defeat the
// point of caching; the header plus a slice of the string/class table is
// enough to catch "pointed at a different dump" and most truncations.
const fingerprintWindow = 64 * 1024

// CachePath returns the on-disk cache path for a snapshot, honoring the
// configured suffix (default ".ri").
func CachePath(snapshotPath, suffix string) string {
	return snapshotPath + suffix
}

// Fingerprint hashes the first fingerprintWindow bytes of the snapshot file.
// A short read is not an error: snapshots smaller than the window are hashed
// in full.
func Fingerprint(snapshotPath string) ([32]byte, int64, error) {
	f, err := os.Open(snapshotPath)
	if err != nil {
		var zero [32]byte
		return zero, 0, appErrors.Wrap(appErrors.CodeInvalidInput, "cannot open snapshot for fingerprinting", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		var zero [32]byte
		return zero, 0, appErrors.Wrap(appErrors.CodeInvalidInput, "cannot stat snapshot", err)
	}

	h := sha256.New()
	if _, err := io.CopyN(h, f, fingerprintWindow); err != nil && err != io.EOF {
		var zero [32]byte
		return zero, 0, appErrors.Wrap(appErrors.CodeParseError, "cannot read snapshot for fingerprinting", err)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, info.Size(), nil
}

// LoadCache reads and validates a reverse-index cache file, returning
// ErrCacheMiss if the file is absent, corrupt, or fingerprinted against a
// different snapshot — callers rebuild on any of those outcomes rather than
// treating them as fatal.
func LoadCache(cachePath string, snapshotPath string, logger utils.Logger) (*ReverseIndex, error) {
	raw, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache file missing", err)
	}

	const headerSize = 4 + 4 + 1
	if len(raw) < headerSize {
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache file shorter than header", nil)
	}
	magic := binary.LittleEndian.Uint32(raw[0:4])
	version := binary.LittleEndian.Uint32(raw[4:8])
	tag := raw[8]
	if magic != cacheMagic {
		logger.Warn("reverse index cache has bad magic, rebuilding: %s", cachePath)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache bad magic", nil)
	}
	if version != cacheVersion {
		logger.Warn("reverse index cache version mismatch, rebuilding: %s", cachePath)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache version mismatch", nil)
	}

	comp, err := compressorForTag(tag)
	if err != nil {
		logger.Warn("reverse index cache has unknown compression tag, rebuilding: %s", cachePath)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache unknown compression tag", err)
	}
	defer compression.Close(comp)

	payload, err := comp.Decompress(raw[headerSize:])
	if err != nil {
		logger.Warn("reverse index cache decompress failed, rebuilding: %s: %v", cachePath, err)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache decompress failed", err)
	}

	idx, fingerprint, snapshotSize, err := decodeEnvelope(payload)
	if err != nil {
		logger.Warn("reverse index cache corrupt, rebuilding: %s: %v", cachePath, err)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache envelope corrupt", err)
	}

	wantFingerprint, wantSize, err := Fingerprint(snapshotPath)
	if err != nil {
		return nil, err
	}
	if fingerprint != wantFingerprint || snapshotSize != wantSize {
		logger.Info("reverse index cache stale, rebuilding: %s", cachePath)
		return nil, appErrors.Wrap(appErrors.CodeCacheMiss, "cache fingerprint mismatch", nil)
	}

	return idx, nil
}

// StoreCache writes idx to cachePath atomically: the envelope is built,
// compressed, and written to a sibling temp file before being renamed into
// place, so a crash mid-write never leaves a half-written cache behind.
func StoreCache(cachePath string, compressionType string, snapshotPath string, idx *ReverseIndex) (err error) {
	fingerprint, snapshotSize, ferr := Fingerprint(snapshotPath)
	if ferr != nil {
		return ferr
	}

	tag, terr := compressTagFor(compressionType)
	if terr != nil {
		return appErrors.Wrap(appErrors.CodeConfigError, "unknown cache compression type", terr)
	}

	payload := encodeEnvelope(idx, fingerprint, snapshotSize)

	comp, cerr := compressorForTag(tag)
	if cerr != nil {
		return appErrors.Wrap(appErrors.CodeConfigError, "unknown cache compression type", cerr)
	}
	defer compression.Close(comp)

	compressedPayload, cerr := comp.Compress(payload)
	if cerr != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cache compress failed", cerr)
	}

	header := make([]byte, 4+4+1)
	binary.LittleEndian.PutUint32(header[0:4], cacheMagic)
	binary.LittleEndian.PutUint32(header[4:8], cacheVersion)
	header[8] = tag
	compressed := append(header, compressedPayload...)

	dir := filepath.Dir(cachePath)
	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(cachePath), uuid.NewString()))

	f, oerr := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if oerr != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot create cache temp file", oerr)
	}
	defer func() {
		if rerr := os.Remove(tmpPath); rerr != nil && !os.IsNotExist(rerr) {
			err = multierr.Append(err, rerr)
		}
	}()

	w := bufio.NewWriter(f)
	if _, werr := w.Write(compressed); werr != nil {
		err = multierr.Append(appErrors.Wrap(appErrors.CodeParseError, "cannot write cache temp file", werr), f.Close())
		return err
	}
	if ferr := w.Flush(); ferr != nil {
		err = multierr.Append(appErrors.Wrap(appErrors.CodeParseError, "cannot flush cache temp file", ferr), f.Close())
		return err
	}
	if cerr := f.Close(); cerr != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot close cache temp file", cerr)
	}

	if rerr := os.Rename(tmpPath, cachePath); rerr != nil {
		return appErrors.Wrap(appErrors.CodeParseError, "cannot rename cache temp file into place", rerr)
	}
	return nil
}

// encodeEnvelope lays out the uncompressed cache payload (the magic,
// version, and compression-type tag live in the outer, never-compressed
// header written by StoreCache):
//
//	snapshot_size(8) fingerprint_len(4) fingerprint(fingerprint_len) entry_count(4)
//	[ child(8) parent_count(4) parent(8)*parent_count ]*entry_count
func encodeEnvelope(idx *ReverseIndex, fingerprint [32]byte, snapshotSize int64) []byte {
	entries := idx.Entries()

	size := 8 + 4 + len(fingerprint) + 4
	for _, parents := range entries {
		size += 8 + 4 + 8*len(parents)
	}

	buf := make([]byte, size)
	off := 0
	binary.LittleEndian.PutUint64(buf[off:], uint64(snapshotSize))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(fingerprint)))
	off += 4
	copy(buf[off:], fingerprint[:])
	off += len(fingerprint)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(entries)))
	off += 4

	for child, parents := range entries {
		binary.LittleEndian.PutUint64(buf[off:], child)
		off += 8
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(parents)))
		off += 4
		for _, p := range parents {
			binary.LittleEndian.PutUint64(buf[off:], p)
			off += 8
		}
	}
	return buf
}

func decodeEnvelope(buf []byte) (*ReverseIndex, [32]byte, int64, error) {
	var zero [32]byte
	const minHeaderSize = 8 + 4
	if len(buf) < minHeaderSize {
		return nil, zero, 0, fmt.Errorf("envelope shorter than header: %d bytes", len(buf))
	}

	off := 0
	snapshotSize := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	fingerprintLen := int(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if fingerprintLen != 32 || off+fingerprintLen+4 > len(buf) {
		return nil, zero, 0, fmt.Errorf("envelope has unexpected fingerprint length %d", fingerprintLen)
	}
	var fingerprint [32]byte
	copy(fingerprint[:], buf[off:off+fingerprintLen])
	off += fingerprintLen
	entryCount := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	parents := make(map[uint64][]uint64, entryCount)
	for i := uint32(0); i < entryCount; i++ {
		if off+12 > len(buf) {
			return nil, zero, 0, fmt.Errorf("envelope truncated at entry %d", i)
		}
		child := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		parentCount := binary.LittleEndian.Uint32(buf[off:])
		off += 4
		if off+8*int(parentCount) > len(buf) {
			return nil, zero, 0, fmt.Errorf("envelope truncated reading parents of entry %d", i)
		}
		ps := make([]uint64, parentCount)
		for j := range ps {
			ps[j] = binary.LittleEndian.Uint64(buf[off:])
			off += 8
		}
		parents[child] = ps
	}

	return NewReverseIndex(parents), fingerprint, snapshotSize, nil
}
