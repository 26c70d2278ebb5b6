package cloakscan

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloakscan/cloakscan/internal/config"
	"github.com/cloakscan/cloakscan/internal/sbom"
	"github.com/cloakscan/cloakscan/pkg/core"
)

var (
	sbomFormat string
	sbomOutput string
	sbomOpts   scanFlags
)

func init() {
	cmd := &cobra.Command{
		Use:         "sbom [path]",
		Annotations: scanRootAnnotation,
		Short:       "Generate an SBOM (SPDX or CycloneDX) annotated with the scan summary",
		Args:        cobra.MaximumNArgs(1),
		RunE:        runSBOM,
	}
	cmd.Flags().StringVarP(&sbomFormat, "format", "f", "spdx", "sbom format: spdx|cyclonedx")
	cmd.Flags().StringVarP(&sbomOutput, "output", "o", "", "write to this file instead of stdout")
	cmd.Flags().DurationVar(&sbomOpts.timeout, "timeout", 0, "overall scan timeout (0 = none)")
	rootCmd.AddCommand(cmd)
}

func runSBOM(cmd *cobra.Command, args []string) error {
	format, err := sbom.ParseFormat(sbomFormat)
	if err != nil {
		return err
	}
	root := absPath(args, ".")
	lcfg, gcfg, err := config.Load(root)
	if err != nil {
		return err
	}
	sbomOpts.defaultExcludes, sbomOpts.gitignore = true, true
	cfg, reg, err := buildScan(cmd, root, &sbomOpts, lcfg, gcfg, scanMode{})
	if err != nil {
		return err
	}
	res, err := core.Scan(cmd.Context(), cfg, reg)
	if err != nil {
		return fmt.Errorf("scan error: %w", err)
	}
	inv, err := sbom.Discover(cmd.Context(), root, log)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stdout
	if sbomOutput != "" {
		f, err := os.Create(sbomOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	doc := sbom.Document{Inventory: inv, Result: res, ToolVersion: version}
	if err := sbom.Write(w, format, doc); err != nil {
		return fmt.Errorf("write sbom: %w", err)
	}
	if sbomOutput != "" {
		fmt.Fprintf(os.Stderr, "Wrote %s SBOM with %d components to %s\n", format, len(inv.Components), sbomOutput)
	}
	return nil
}
