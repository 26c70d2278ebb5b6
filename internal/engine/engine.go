package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/cloakscan/cloakscan/internal/cache"
	"github.com/cloakscan/cloakscan/internal/detectors"
	"github.com/cloakscan/cloakscan/internal/git"
	"github.com/cloakscan/cloakscan/internal/logger"
	"github.com/cloakscan/cloakscan/internal/report"
	"github.com/cloakscan/cloakscan/internal/rules"
	"github.com/cloakscan/cloakscan/internal/score"
	"github.com/cloakscan/cloakscan/internal/types"
)

// DefaultMaxBytes is the per-file size limit when none is configured.
const DefaultMaxBytes int64 = 1 << 20

// ErrInvalidRoot is returned when the scan root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid scan root")

// Config controls scanning behavior including scope, performance, and filters.
type Config struct {
	Root            string
	Include         []string
	Exclude         []string
	MaxBytes        int64
	Threads         int
	Timeout         time.Duration
	MinConfidence   float64
	DefaultExcludes bool
	Gitignore       bool
	Logger          zerolog.Logger
	// Progress is called once per finished file, from worker goroutines.
	Progress func()
	// Cache, when set, serves findings of files whose content is unchanged.
	Cache ResultCache
}

// ResultCache stores per-file findings before the confidence filter, keyed
// by relative path and content hash. Implementations must be safe for
// concurrent use.
type ResultCache interface {
	Lookup(rel, sum string) ([]types.Finding, bool)
	Store(rel, sum string, fs []types.Finding)
}

// Scan runs reg over every eligible file under cfg.Root. An elapsed
// cfg.Timeout is not an error: the result is returned with status timed_out
// and only contains files that finished processing. Cancellation of ctx by
// the caller is returned as an error.
func Scan(ctx context.Context, cfg Config, reg *rules.Registry) (types.ScanResult, error) {
	root, err := checkRoot(cfg.Root)
	if err != nil {
		return types.ScanResult{}, err
	}
	cfg.Root = root
	if reg == nil {
		return types.ScanResult{}, rules.ErrNoRules
	}
	if err := reg.Check(); err != nil {
		return types.ScanResult{}, err
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	log := logger.Component(cfg.Logger, "engine")

	agg := report.NewAggregator(types.Metadata{
		ScanID:         uuid.NewString(),
		Root:           root,
		StartedAt:      time.Now(),
		RulesetVersion: reg.Version(),
		RulesetHash:    reg.Hash(),
		RuleCount:      len(reg.Rules()),
		Repo:           git.RepoMetadata(root),
	})
	for _, rj := range reg.Rejections() {
		agg.Warn(types.Warning{Kind: "rule_rejected", Subject: rj.RuleID, Message: rj.String()})
	}

	var scanCtx context.Context
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	workers := workerCount(cfg.Threads, cfg.MaxBytes, log)
	log.Debug().Int("workers", workers).Int("rules", len(reg.Rules())).Str("root", root).Msg("scan started")

	files := make(chan FileDescriptor, workers)
	var interrupted atomic.Bool

	// After the deadline the walker keeps classifying the rest of the tree so
	// every eligible file is accounted for, but delivers nothing more.
	g, gctx := errgroup.WithContext(scanCtx)
	g.Go(func() error {
		defer close(files)
		err := Walk(ctx, cfg, func(fd FileDescriptor) error {
			if gctx.Err() == nil {
				select {
				case files <- fd:
					return nil
				case <-gctx.Done():
				}
			}
			interrupted.Store(true)
			if fd.Binary {
				agg.Binary()
			} else {
				agg.Skip(fd.RelPath, types.SkipTimeout)
			}
			return nil
		}, func(s types.SkippedFile) { agg.Skip(s.Path, s.Reason) })
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			interrupted.Store(true)
			return nil
		}
		return err
	})

	p := &pipeline{cfg: cfg, reg: reg, scorer: score.New(cfg.Logger), agg: agg, log: log, interrupted: &interrupted}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for fd := range files {
				p.process(gctx, fd)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.ScanResult{}, fmt.Errorf("walk %s: %w", root, err)
	}

	status := types.StatusComplete
	if interrupted.Load() {
		if err := ctx.Err(); err != nil {
			return types.ScanResult{}, err
		}
		status = types.StatusTimedOut
		agg.Warn(types.Warning{Kind: "timeout", Message: fmt.Sprintf("scan stopped after %s; results are partial", cfg.Timeout)})
		log.Warn().Dur("timeout", cfg.Timeout).Msg("scan timed out")
	}
	res := agg.Result(status)
	log.Debug().Int("findings", len(res.Findings)).Int("scanned", res.Metadata.FilesScanned).Int("skipped", res.Metadata.FilesSkipped).Msg("scan finished")
	return res, nil
}

func checkRoot(root string) (string, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return abs, nil
}

// workerCount bounds the pool so that workers holding a maximal file each
// stay under half of the available memory.
func workerCount(threads int, maxBytes int64, log zerolog.Logger) int {
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	vm, err := mem.VirtualMemory()
	if err != nil || maxBytes <= 0 {
		return threads
	}
	limit := int(vm.Available / 2 / uint64(maxBytes))
	if limit < 1 {
		limit = 1
	}
	if limit < threads {
		log.Debug().Int("threads", threads).Int("limit", limit).Msg("worker count capped by available memory")
		return limit
	}
	return threads
}

type pipeline struct {
	cfg         Config
	reg         *rules.Registry
	scorer      *score.Scorer
	agg         *report.Aggregator
	log         zerolog.Logger
	interrupted *atomic.Bool
}

func (p *pipeline) process(ctx context.Context, fd FileDescriptor) {
	if fd.Binary {
		p.agg.Binary()
		p.done()
		return
	}
	if ctx.Err() != nil {
		p.timedOut(fd.RelPath)
		return
	}
	data, err := readLimited(fd.Path, p.cfg.MaxBytes)
	switch {
	case errors.Is(err, errTooLarge):
		p.agg.Skip(fd.RelPath, types.SkipTooLarge)
		return
	case err != nil:
		p.log.Debug().Err(err).Str("path", fd.RelPath).Msg("unreadable file")
		p.agg.Skip(fd.RelPath, types.SkipUnreadable)
		return
	}
	if looksBinary(data) {
		p.agg.Binary()
		p.done()
		return
	}

	var sum string
	if p.cfg.Cache != nil {
		sum = cache.Sum(data)
		if cached, ok := p.cfg.Cache.Lookup(fd.RelPath, sum); ok {
			p.finish(fd.RelPath, cached)
			return
		}
	}

	f := detectors.NewFile(fd.RelPath, data)
	raw, err := detectors.Scan(ctx, p.reg.Rules(), f)
	if err != nil {
		p.timedOut(fd.RelPath)
		return
	}
	fs := p.scorer.File(f)
	for i := range raw {
		if r, ok := p.reg.Lookup(raw[i].RuleID); ok {
			raw[i] = fs.Score(r, raw[i])
		}
	}
	merged := Dedupe(raw)
	if p.cfg.Cache != nil {
		p.cfg.Cache.Store(fd.RelPath, sum, merged)
	}
	p.finish(fd.RelPath, merged)
}

// finish applies the confidence filter and hands the file to the aggregator.
func (p *pipeline) finish(rel string, fs []types.Finding) {
	kept := make([]types.Finding, 0, len(fs))
	for _, fnd := range fs {
		if fnd.Confidence >= p.cfg.MinConfidence {
			kept = append(kept, fnd)
		}
	}
	p.agg.Add(report.FileResult{Path: rel, Findings: kept})
	p.done()
}

func (p *pipeline) timedOut(rel string) {
	p.interrupted.Store(true)
	p.agg.Skip(rel, types.SkipTimeout)
}

func (p *pipeline) done() {
	if p.cfg.Progress != nil {
		p.cfg.Progress()
	}
}

var errTooLarge = errors.New("file exceeds size limit")

// readLimited reads at most limit bytes; files that grew past the limit since
// they were listed are rejected.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errTooLarge
	}
	return b, nil
}
