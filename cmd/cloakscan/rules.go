package cloakscan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cloakscan/cloakscan/internal/config"
	"github.com/cloakscan/cloakscan/internal/rules"
)

var (
	rulesListAll      bool
	rulesListJSON     bool
	rulesListCategory string

	addFrom        string
	addDef         rules.Definition
	addConfidence  float64
	addMinLength   int
	addThreshold   float64
	addDisabled    bool
	addPatternKind string
)

func init() {
	cmd := &cobra.Command{Use: "rules", Short: "List and edit detection rules"}
	rootCmd.AddCommand(cmd)

	list := &cobra.Command{
		Use:   "list",
		Short: "List the effective rules",
		Args:  cobra.NoArgs,
		RunE:  runRulesList,
	}
	list.Flags().BoolVar(&rulesListAll, "all", false, "include disabled rules")
	list.Flags().BoolVar(&rulesListJSON, "json", false, "emit rule definitions as JSON")
	list.Flags().StringVar(&rulesListCategory, "category", "", "only list rules of this category")
	cmd.AddCommand(list)

	add := &cobra.Command{
		Use:   "add",
		Short: "Add or replace a rule in the custom rule file",
		Args:  cobra.NoArgs,
		RunE:  runRulesAdd,
		Example: `  cloakscan rules add --id acme-key --category secret --pattern 'acme_[a-z0-9]{32}' --severity high --confidence 0.9
  cloakscan rules add --from team-rules.yml`,
	}
	add.Flags().StringVar(&addFrom, "from", "", "add every rule of this YAML or JSON document")
	add.Flags().StringVar(&addDef.ID, "id", "", "rule ID")
	add.Flags().StringVar(&addDef.Category, "category", rules.CategorySecret, "rule category")
	add.Flags().StringVar(&addPatternKind, "kind", string(rules.KindRegex), "pattern kind: literal|regex|entropy")
	add.Flags().StringVar(&addDef.Pattern, "pattern", "", "pattern (context regex for entropy rules)")
	add.Flags().StringVar(&addDef.Severity, "severity", "medium", "severity: info|low|medium|high|critical")
	add.Flags().Float64Var(&addConfidence, "confidence", 0.5, "base confidence (0-1)")
	add.Flags().StringVar(&addDef.Description, "description", "", "human readable description")
	add.Flags().StringSliceVar(&addDef.Keywords, "keyword", nil, "prefilter keyword (repeatable)")
	add.Flags().StringSliceVar(&addDef.Allowlist, "allow", nil, "allowlist regex applied to the match (repeatable)")
	add.Flags().StringSliceVar(&addDef.PathExcludes, "path-exclude", nil, "glob of paths the rule skips (repeatable)")
	add.Flags().IntVar(&addMinLength, "min-length", 0, "entropy rules: minimum candidate length")
	add.Flags().Float64Var(&addThreshold, "entropy-threshold", 0, "entropy rules: bits per character threshold")
	add.Flags().BoolVar(&addDisabled, "disabled", false, "add the rule disabled")
	cmd.AddCommand(add)

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a custom rule, or disable a built-in one",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesRemove,
	}
	cmd.AddCommand(remove)
}

// editableRulesPath is the custom rule document edited by add and remove.
func editableRulesPath() (string, error) {
	lcfg, gcfg, err := config.Load(".")
	if err != nil {
		return "", err
	}
	if p := rulesPath(".", lcfg, gcfg); p != "" {
		return p, nil
	}
	return defaultRulesFile, nil
}

func runRulesList(_ *cobra.Command, _ []string) error {
	lcfg, gcfg, err := config.Load(".")
	if err != nil {
		return err
	}
	reg, err := rules.Load(rulesPath(".", lcfg, gcfg), ruleOptions(lcfg, gcfg))
	if err != nil {
		return err
	}
	if rulesListCategory != "" {
		reg = reg.Restrict(strings.ToLower(rulesListCategory))
	}
	list := reg.Rules()
	if rulesListAll {
		list = reg.All()
	}

	if rulesListJSON {
		defs := make([]rules.Definition, 0, len(list))
		for _, r := range list {
			defs = append(defs, r.Definition())
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"version": reg.Version(), "hash": reg.Hash(), "rules": defs})
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "CATEGORY", "KIND", "SEVERITY", "CONFIDENCE", "ENABLED", "SOURCE")
	for _, r := range list {
		if err := table.Append([]string{
			r.ID, r.Category, string(r.Kind), string(r.Severity),
			strconv.FormatFloat(r.Confidence, 'f', 2, 64), strconv.FormatBool(r.Enabled), r.Source,
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Printf("Ruleset %s (%s): %d enabled, %d total\n", reg.Version(), reg.Hash(), len(reg.Rules()), len(reg.All()))
	for _, rj := range reg.Rejections() {
		fmt.Fprintln(os.Stderr, "warning:", rj.String())
	}
	return nil
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	path, err := editableRulesPath()
	if err != nil {
		return err
	}

	var defs []rules.Definition
	if addFrom != "" {
		src, err := rules.LoadFile(addFrom)
		if err != nil {
			return err
		}
		if len(src.Rejections) > 0 {
			return errors.New(src.Rejections[0].String())
		}
		defs = src.Definitions
	} else {
		d := addDef
		d.Kind = rules.Kind(strings.ToLower(addPatternKind))
		conf := addConfidence
		d.Confidence = &conf
		if cmd.Flags().Changed("min-length") {
			ml := addMinLength
			d.MinLength = &ml
		}
		if cmd.Flags().Changed("entropy-threshold") {
			th := addThreshold
			d.EntropyThreshold = &th
		}
		if addDisabled {
			off := false
			d.Enabled = &off
		}
		defs = []rules.Definition{d}
	}

	for _, d := range defs {
		if err := rules.AddDefinition(path, d); err != nil {
			return err
		}
		fmt.Printf("Added rule %s to %s\n", d.ID, path)
	}
	return nil
}

func runRulesRemove(_ *cobra.Command, args []string) error {
	path, err := editableRulesPath()
	if err != nil {
		return err
	}
	disabled, err := rules.RemoveDefinition(path, args[0], rules.Builtin())
	if err != nil {
		return err
	}
	if disabled {
		fmt.Printf("Disabled built-in rule %s in %s\n", args[0], path)
		return nil
	}
	fmt.Printf("Removed rule %s from %s\n", args[0], path)
	return nil
}
