// Package run wires the snapshot loader, reverse-index cache, Target
// Selector, Walker, Edge Resolver, and Reporter into one CLI invocation.
package run

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/leaks-collector/internal/heap"
	"github.com/leaks-collector/internal/hprof"
	"github.com/leaks-collector/internal/oracle"
	"github.com/leaks-collector/internal/report"
	"github.com/leaks-collector/internal/target"
	"github.com/leaks-collector/internal/walker"
	"github.com/leaks-collector/pkg/config"
	appErrors "github.com/leaks-collector/pkg/errors"
	"github.com/leaks-collector/pkg/utils"
)

// Version is the reported tool version, set at build time via -ldflags;
// it defaults to "dev" for local builds.
var Version = "dev"

// Options bundles one AnalysisRun invocation's inputs.
type Options struct {
	SnapshotPath string
	Selection    target.Selection
	NoCache      bool
	Config       *config.Config
	Logger       utils.Logger
}

// Execute runs one full analysis: load the snapshot, load-or-build the
// reverse index, resolve targets, walk each to a root, resolve edges,
// group, and write the report to out.
func Execute(ctx context.Context, opts Options, out io.Writer) error {
	logger := opts.Logger
	if logger == nil {
		logger = utils.GetGlobalLogger()
	}

	if _, err := os.Stat(opts.SnapshotPath); err != nil {
		return appErrors.Wrap(appErrors.CodeInvalidInput, "snapshot path does not exist: "+opts.SnapshotPath, err)
	}

	timer := utils.NewTimer("leaks-collector", utils.WithLogger(logger))

	loadPhase := timer.Start("load-snapshot")
	oc, err := hprof.Load(opts.SnapshotPath)
	loadPhase.Stop()
	if err != nil {
		return err
	}

	idx, roots, err := loadOrBuildIndex(ctx, opts, oc, timer, logger)
	if err != nil {
		return err
	}

	targetIDs, err := target.Resolve(oc, opts.Selection, opts.Config.Selector.DefaultTargetClasses)
	if err != nil {
		return err
	}

	classOf := func(id uint64) string { return classNameOf(oc, id) }

	allTargets := make(map[uint64]struct{}, len(targetIDs))
	for _, id := range targetIDs {
		allTargets[id] = struct{}{}
	}

	claimed := walker.NewClaimedNodes()
	walkPhase := timer.Start("walk-targets")

	var resolved []report.ResolvedPath
	var dependentIDs []uint64

	for _, id := range targetIDs {
		params := walker.Params{
			TargetID:          id,
			ReverseIndex:      idx,
			Roots:             roots,
			AllTargets:        allTargets,
			Claimed:           claimed,
			ClassOf:           classOf,
			MaxBacktracks:     opts.Config.Walker.MaxBacktracks,
			MaxPathsPerTarget: opts.Config.Walker.MaxPathsPerTarget,
			DefaultMergeDepth: opts.Config.Walker.DefaultMergeDepth,
			Anchors:           opts.Config.Walker.Anchors,
			Logger:            logger,
		}
		records := walker.Walk(params)
		if walker.IsDependent(records) {
			dependentIDs = append(dependentIDs, id)
			continue
		}
		for _, rec := range records {
			if !roots.IsRoot(rec.RootID) {
				logger.Debug("dropping path record for target %d: root id %d is not in the strong-root map", id, rec.RootID)
				continue
			}
			resolved = append(resolved, toResolvedPath(oc, roots, id, rec, logger))
		}
	}
	walkPhase.Stop()

	groups := report.GroupPaths(resolved)
	classNames := make(map[uint64]string, len(dependentIDs))
	for _, id := range dependentIDs {
		classNames[id] = classNameOf(oc, id)
	}
	dependents := report.GroupDependents(classNames, dependentIDs)

	info, err := snapshotInfo(opts.SnapshotPath, oc)
	if err != nil {
		return err
	}

	return report.NewReporter(out).WriteReport(info, groups, dependents)
}

func loadOrBuildIndex(ctx context.Context, opts Options, oc oracle.GraphOracle, timer *utils.Timer, logger utils.Logger) (*heap.ReverseIndex, *heap.RootSet, error) {
	cachePath := heap.CachePath(opts.SnapshotPath, opts.Config.Cache.Suffix)

	if !opts.NoCache && !opts.Config.Cache.Disabled {
		if idx, err := heap.LoadCache(cachePath, opts.SnapshotPath, logger); err == nil {
			return idx, heap.CollectRoots(oc), nil
		}
	}

	buildPhase := timer.Start("build-reverse-index")
	filter := heap.NewLeafFilter()
	idx, roots, err := heap.BuildReverseIndex(ctx, oc, filter, logger)
	buildPhase.Stop()
	if err != nil {
		return nil, nil, err
	}

	if !opts.Config.Cache.Disabled {
		if serr := heap.StoreCache(cachePath, opts.Config.Cache.CompressionType, opts.SnapshotPath, idx); serr != nil {
			logger.Warn("could not write reverse index cache: %v", serr)
		}
	}

	return idx, roots, nil
}

// toResolvedPath builds the finalized id chain (root first, then the
// reversed target-side ids, then the target itself), resolves its edges,
// and assembles the report-ready ResolvedPath.
func toResolvedPath(oc oracle.GraphOracle, roots *heap.RootSet, targetID uint64, rec *walker.PathRecord, logger utils.Logger) report.ResolvedPath {
	chain := make([]uint64, 0, len(rec.IDsFromTarget)+1)
	for i := len(rec.IDsFromTarget) - 1; i >= 0; i-- {
		chain = append(chain, rec.IDsFromTarget[i])
	}
	chain = append(chain, targetID)

	steps := walker.ResolveChain(oc, chain, logger)

	return report.ResolvedPath{
		TargetID:    targetID,
		TargetClass: classNameOf(oc, targetID),
		RootKind:    roots.Kind(rec.RootID),
		RootID:      rec.RootID,
		Steps:       steps,
	}
}

func classNameOf(oc oracle.GraphOracle, id uint64) string {
	if !oc.Exists(id) {
		return "?"
	}
	switch oc.Kind(id) {
	case oracle.KindInstance:
		if inst, ok := oc.AsInstance(id); ok {
			return inst.ClassName()
		}
	case oracle.KindObjectArray:
		if arr, ok := oc.AsObjectArray(id); ok {
			return arr.ClassName()
		}
	case oracle.KindClassObject:
		if cls, ok := oc.AsClassObject(id); ok {
			return cls.ClassName()
		}
	}
	return "?"
}

func snapshotInfo(path string, oc oracle.GraphOracle) (report.SnapshotInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return report.SnapshotInfo{}, appErrors.Wrap(appErrors.CodeInvalidInput, "cannot stat snapshot", err)
	}
	absPath := path
	if resolved, aerr := filepath.Abs(path); aerr == nil {
		absPath = resolved
	}

	info := report.SnapshotInfo{
		Version:  Version,
		FilePath: absPath,
		SizeMB:   float64(fi.Size()) / (1024 * 1024),
	}

	if store, ok := oc.(*hprof.Store); ok {
		stats := store.Stats()
		info.NumClasses = stats.Classes
		info.NumInstances = stats.Instances
		info.NumObjectArrays = stats.ObjectArrays
		info.NumPrimitiveArrays = stats.PrimitiveArrays
		info.NumRoots = stats.Roots
		if store.Header != nil {
			info.HprofVersion = store.Header.Format
			info.PointerBits = store.Header.IDSize * 8
			info.Timestamp = store.Header.Timestamp.Format("2006-01-02 15:04:05 MST")
		}
	}

	return info, nil
}
