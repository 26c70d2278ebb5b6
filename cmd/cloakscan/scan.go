package cloakscan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cloakscan/cloakscan/internal/audit"
	"github.com/cloakscan/cloakscan/internal/cache"
	"github.com/cloakscan/cloakscan/internal/config"
	"github.com/cloakscan/cloakscan/internal/engine"
	"github.com/cloakscan/cloakscan/internal/report"
	"github.com/cloakscan/cloakscan/internal/types"
	"github.com/cloakscan/cloakscan/pkg/core"
)

// scanFlags holds the flags shared by scan and security.
type scanFlags struct {
	path            string
	format          string
	failOn          string
	timeout         time.Duration
	include         string
	exclude         string
	maxBytes        int64
	minConfidence   float64
	showSuppressed  bool
	defaultExcludes bool
	gitignore       bool
	baseline        string
	updateBaseline  bool
	audit           bool
	noCache         bool
}

// scanMode distinguishes scan from security.
type scanMode struct {
	categories    []string
	defaultFailOn types.Severity
}

var (
	scanOpts     scanFlags
	securityOpts scanFlags
)

func init() {
	scan := &cobra.Command{
		Use:         "scan [path]",
		Annotations: scanRootAnnotation,
		Short:       "Scan files for secrets and insecure code",
		Args:        cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, &scanOpts, scanMode{defaultFailOn: types.SevMed})
		},
	}
	registerScanFlags(scan, &scanOpts, "medium")
	rootCmd.AddCommand(scan)

	security := &cobra.Command{
		Use:         "security [path]",
		Annotations: scanRootAnnotation,
		Short:       "Scan with the security rule categories only, failing at low severity",
		Args:        cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, &securityOpts, scanMode{categories: core.SecurityCategories, defaultFailOn: types.SevLow})
		},
	}
	registerScanFlags(security, &securityOpts, "low")
	rootCmd.AddCommand(security)
}

func registerScanFlags(cmd *cobra.Command, f *scanFlags, failOn string) {
	cmd.Flags().StringVarP(&f.path, "path", "p", ".", "path to scan (the positional argument wins)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "text", "output format: text|json|sarif")
	cmd.Flags().StringVar(&f.failOn, "fail-on", "", "exit 1 on unsuppressed findings at or above: info|low|medium|high|critical (default "+failOn+")")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "overall scan timeout, e.g. 30s (0 = none)")
	cmd.Flags().StringVar(&f.include, "include", "", "comma-separated include globs")
	cmd.Flags().StringVar(&f.exclude, "exclude", "", "comma-separated exclude globs")
	cmd.Flags().Int64Var(&f.maxBytes, "max-bytes", 0, "skip files larger than this (default 1 MiB)")
	cmd.Flags().Float64Var(&f.minConfidence, "min-confidence", 0, "only report findings with confidence >= value (0-1)")
	cmd.Flags().BoolVar(&f.showSuppressed, "show-suppressed", false, "include suppressed findings in text output")
	cmd.Flags().BoolVar(&f.defaultExcludes, "default-excludes", true, "apply built-in exclude list (node_modules, vendor, lock files, ...)")
	cmd.Flags().BoolVar(&f.gitignore, "gitignore", true, "honor .gitignore files")
	cmd.Flags().StringVar(&f.baseline, "baseline", "", "baseline file of accepted findings (default <path>/"+report.DefaultBaselineFile+")")
	cmd.Flags().BoolVar(&f.updateBaseline, "update-baseline", false, "write current findings to the baseline file and exit")
	cmd.Flags().BoolVar(&f.audit, "audit", false, "append a scan record to the audit log")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "match every file again instead of reusing cached results")
}

func runScan(cmd *cobra.Command, args []string, f *scanFlags, mode scanMode) error {
	root := absPath(args, f.path)
	lcfg, gcfg, err := config.Load(root)
	if err != nil {
		return err
	}

	format := strings.ToLower(f.format)
	switch format {
	case "text", "json", "sarif":
	default:
		return fmt.Errorf("unknown format %q (want text|json|sarif)", f.format)
	}
	failOn, err := pickSeverity(f.failOn, lcfg.FailOn, gcfg.FailOn, mode.defaultFailOn)
	if err != nil {
		return err
	}

	cfg, reg, err := buildScan(cmd, root, f, lcfg, gcfg, mode)
	if err != nil {
		return err
	}

	text := format == "text"
	if text {
		fmt.Fprintf(os.Stderr, "Scanning %s with %d rules...\n", root, len(reg.Rules()))
		if term.IsTerminal(int(os.Stderr.Fd())) {
			attachProgress(&cfg)
		}
	}

	var db *cache.DB
	if !pickBool(f.noCache, lcfg.NoCache, gcfg.NoCache) {
		db, err = cache.Open(root, reg.Hash()+"/"+version)
		if err != nil {
			log.Warn().Err(err).Msg("result cache ignored")
		}
		cfg.Cache = db
	}

	res, err := core.Scan(cmd.Context(), cfg, reg)
	if err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	if db != nil && res.Status == types.StatusComplete {
		if err := db.Save(); err != nil {
			log.Warn().Err(err).Str("path", db.Path()).Msg("result cache not saved")
		}
	}
	if cfg.Progress != nil {
		fmt.Fprintln(os.Stderr)
	}

	basePath := f.baseline
	if basePath == "" {
		basePath = pickString("", lcfg.Baseline, gcfg.Baseline)
	}
	if basePath == "" {
		basePath = filepath.Join(root, report.DefaultBaselineFile)
	}
	if f.updateBaseline {
		if err := report.SaveBaseline(basePath, res.Findings); err != nil {
			return fmt.Errorf("save baseline: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Baseline updated: %s (%d findings)\n", basePath, len(res.Active()))
		return nil
	}
	base, err := report.LoadBaseline(basePath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	view := report.ApplyBaseline(res, base)

	switch format {
	case "sarif":
		if err := report.WriteSARIF(os.Stdout, view, version); err != nil {
			return fmt.Errorf("sarif error: %w", err)
		}
	case "json":
		if err := report.WriteJSON(os.Stdout, view); err != nil {
			return err
		}
	default:
		noColor := pickBool(flagNoColor, lcfg.NoColor, gcfg.NoColor) || !report.ColorEnabled(os.Stdout)
		if err := report.PrintTable(os.Stdout, view, report.PrintOptions{NoColor: noColor, ShowSuppressed: f.showSuppressed}); err != nil {
			return err
		}
	}

	if pickBool(f.audit, lcfg.Audit, gcfg.Audit) {
		al := audit.NewAuditLog(root)
		if prev, err := al.LoadHistory(); err == nil && len(prev) > 0 && text {
			fmt.Fprintf(os.Stderr, "Previous audited scan %s: %d new findings (now %d)\n",
				prev[0].Timestamp.Local().Format(time.RFC3339), prev[0].NewFindings, len(view.Findings))
		}
		if err := al.LogScan(audit.CreateScanRecord(res, view.Findings, basePath)); err != nil {
			log.Warn().Err(err).Str("path", al.Path()).Msg("audit log not written")
		}
	}

	if report.ShouldFail(view.Findings, failOn) {
		return errFindings
	}
	return nil
}

// buildScan resolves engine configuration and the rule registry for root
// with precedence CLI > local config > global config.
func buildScan(cmd *cobra.Command, root string, f *scanFlags, lcfg, gcfg config.FileConfig, mode scanMode) (engine.Config, *core.Registry, error) {
	reg, err := core.LoadRules(rulesPath(root, lcfg, gcfg), ruleOptions(lcfg, gcfg))
	if err != nil {
		return engine.Config{}, nil, fmt.Errorf("load rules: %w", err)
	}
	if len(mode.categories) > 0 {
		reg = reg.Restrict(mode.categories...)
	}
	for _, rj := range reg.Rejections() {
		fmt.Fprintln(os.Stderr, "warning:", rj.String())
	}

	cfg := engine.Config{
		Root:            root,
		Include:         engine.SplitGlobs(pickString(f.include, lcfg.Include, gcfg.Include)),
		Exclude:         engine.SplitGlobs(pickString(f.exclude, lcfg.Exclude, gcfg.Exclude)),
		MaxBytes:        pickInt64(f.maxBytes, lcfg.MaxBytes, gcfg.MaxBytes),
		Threads:         pickInt(flagThreads, lcfg.Threads, gcfg.Threads),
		Timeout:         pickDuration(f.timeout, lcfg, gcfg),
		MinConfidence:   pickFloat(f.minConfidence, lcfg.MinConfidence, gcfg.MinConfidence),
		DefaultExcludes: pickBoolFlag(cmd, "default-excludes", f.defaultExcludes, lcfg.DefaultExcludes, gcfg.DefaultExcludes, true),
		Gitignore:       pickBoolFlag(cmd, "gitignore", f.gitignore, lcfg.Gitignore, gcfg.Gitignore, true),
		Logger:          log,
	}
	return cfg, reg, nil
}

// attachProgress installs a textual progress counter on stderr.
func attachProgress(cfg *engine.Config) {
	total, err := engine.CountTargets(*cfg)
	if err != nil || total == 0 {
		return
	}
	var done atomic.Int64
	cfg.Progress = func() {
		n := done.Add(1)
		if n%10 == 0 || n == int64(total) {
			pct := float64(n) / float64(total) * 100
			fmt.Fprintf(os.Stderr, "\r[%d/%d] %.0f%%", n, total, pct)
		}
	}
}
