package cloakscan

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloakscan/cloakscan/internal/config"
	"github.com/cloakscan/cloakscan/internal/rules"
	"github.com/cloakscan/cloakscan/internal/types"
)

// defaultRulesFile is the custom rule document looked up in the scan root
// and edited by `rules add|remove` when no --rules path is given.
const defaultRulesFile = ".cloakscan-rules.yml"

func pickString(cli string, local, global *string) string {
	if cli != "" {
		return cli
	}
	if local != nil && *local != "" {
		return *local
	}
	if global != nil && *global != "" {
		return *global
	}
	return ""
}

func pickInt(cli int, local, global *int) int {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickInt64(cli int64, local, global *int64) int64 {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickFloat(cli float64, local, global *float64) float64 {
	if cli != 0 {
		return cli
	}
	if local != nil && *local != 0 {
		return *local
	}
	if global != nil && *global != 0 {
		return *global
	}
	return 0
}

func pickBool(cli bool, local, global *bool) bool {
	if cli {
		return true
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return false
}

// pickBoolFlag is pickBool for flags whose default is not false: an
// explicitly set flag always wins, otherwise config, otherwise def.
func pickBoolFlag(cmd *cobra.Command, name string, cli bool, local, global *bool, def bool) bool {
	if cmd.Flags().Changed(name) {
		return cli
	}
	if local != nil {
		return *local
	}
	if global != nil {
		return *global
	}
	return def
}

func pickDuration(cli time.Duration, local, global config.FileConfig) time.Duration {
	if cli != 0 {
		return cli
	}
	if d := local.TimeoutDuration(); d != 0 {
		return d
	}
	return global.TimeoutDuration()
}

func pickSeverity(cli string, local, global *string, def types.Severity) (types.Severity, error) {
	s := pickString(cli, local, global)
	if s == "" {
		return def, nil
	}
	return types.ParseSeverity(s)
}

// rulesPath resolves the custom rule file: --rules, then the local and
// global config, then defaultRulesFile in root if it exists. Relative paths
// from the local config are resolved against root.
func rulesPath(root string, lcfg, gcfg config.FileConfig) string {
	if flagRules != "" {
		return flagRules
	}
	if lcfg.Rules != nil && *lcfg.Rules != "" {
		if filepath.IsAbs(*lcfg.Rules) {
			return *lcfg.Rules
		}
		return filepath.Join(root, *lcfg.Rules)
	}
	if gcfg.Rules != nil && *gcfg.Rules != "" {
		return *gcfg.Rules
	}
	p := filepath.Join(root, defaultRulesFile)
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return ""
}

func ruleOptions(lcfg, gcfg config.FileConfig) rules.Options {
	var lt, gt *float64
	var lm, gm *int
	if lcfg.Entropy != nil {
		lt, lm = lcfg.Entropy.Threshold, lcfg.Entropy.MinLength
	}
	if gcfg.Entropy != nil {
		gt, gm = gcfg.Entropy.Threshold, gcfg.Entropy.MinLength
	}
	return rules.Options{
		Entropy: rules.EntropyDefaults{
			Threshold: pickFloat(0, lt, gt),
			MinLength: pickInt(0, lm, gm),
		},
		Logger: log,
	}
}

// scanRootAnnotation marks commands whose first argument is the scan root.
var scanRootAnnotation = map[string]string{"cloakscan/root": "arg"}

// configRoot is the directory whose local config applies to cmd: the scan
// root for commands that take one, the working directory otherwise.
func configRoot(cmd *cobra.Command, args []string) string {
	if cmd.Annotations["cloakscan/root"] == "" {
		return "."
	}
	fallback := "."
	if p, err := cmd.Flags().GetString("path"); err == nil && p != "" {
		fallback = p
	}
	return absPath(args, fallback)
}

func absPath(args []string, fallback string) string {
	p := fallback
	if len(args) > 0 && args[0] != "" {
		p = args[0]
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
