package report

import (
	"fmt"
	"io"
)

// SnapshotInfo carries the header metadata printed above every report,
// gathered from the Graph Oracle and the snapshot file itself.
type SnapshotInfo struct {
	Version            string
	FilePath           string
	SizeMB             float64
	Timestamp          string
	HprofVersion       string
	PointerBits        int
	NumClasses         int
	NumInstances       int
	NumObjectArrays    int
	NumPrimitiveArrays int
	NumRoots           int
}

// Reporter writes the fixed plain-text report format to an io.Writer,
// generalizing the teacher's small writer-wrapping-io.Writer shape from
// JSON encoding to the domain's fixed text template.
type Reporter struct {
	w io.Writer
}

// NewReporter returns a Reporter writing to w.
func NewReporter(w io.Writer) *Reporter {
	return &Reporter{w: w}
}

// WriteReport renders the header, every discovered group (sorted by the
// caller via GroupPaths), and the dependent-target section.
func (r *Reporter) WriteReport(info SnapshotInfo, groups []Group, dependents []DependentTarget) error {
	if err := r.writeHeader(info); err != nil {
		return err
	}
	for _, g := range groups {
		if err := r.writeGroup(g); err != nil {
			return err
		}
	}
	for _, d := range dependents {
		if err := r.writeDependent(d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reporter) writeHeader(info SnapshotInfo) error {
	_, err := fmt.Fprintf(r.w,
		"# leaks-collector %s\n"+
			"# File: %s\n"+
			"# Size: %.1fMB\n"+
			"# Heap dump timestamp: %s\n"+
			"# Hprof version: %s\n"+
			"# JVM pointer size: %d-bit\n"+
			"# Objects: %d (%d classes, %d instances, %d object arrays, %d primitive arrays)\n"+
			"# GC roots: %d\n\n",
		info.Version, info.FilePath, info.SizeMB, info.Timestamp, info.HprofVersion, info.PointerBits,
		info.NumClasses+info.NumInstances+info.NumObjectArrays+info.NumPrimitiveArrays,
		info.NumClasses, info.NumInstances, info.NumObjectArrays, info.NumPrimitiveArrays,
		info.NumRoots,
	)
	return err
}

func (r *Reporter) writeGroup(g Group) error {
	if len(g.TargetIDs) == 1 {
		if _, err := fmt.Fprintf(r.w, "# %s@%d\n", g.Exemplar.TargetClass, g.TargetIDs[0]); err != nil {
			return err
		}
	} else {
		if _, err := fmt.Fprintf(r.w, "# %s (%d instances)\n", g.Exemplar.TargetClass, len(g.TargetIDs)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(r.w, "%s\n\n", formatStepsText(g.Exemplar))
	return err
}

func (r *Reporter) writeDependent(d DependentTarget) error {
	if len(d.TargetIDs) == 1 {
		_, err := fmt.Fprintf(r.w, "# %s@%d — held by a path above\n\n", d.ClassName, d.TargetIDs[0])
		return err
	}
	_, err := fmt.Fprintf(r.w, "# %s (%d instances) — held by a path above\n\n", d.ClassName, len(d.TargetIDs))
	return err
}
