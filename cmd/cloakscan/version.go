package cloakscan

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cloakscan/cloakscan/internal/rules"
)

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the cloakscan and built-in ruleset versions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			reg := rules.NewRegistry(rules.Options{Logger: log}, rules.Builtin())
			fmt.Printf("cloakscan %s\n", version)
			fmt.Printf("ruleset   %s (%d rules, %s)\n", reg.Version(), len(reg.Rules()), reg.Hash())
			fmt.Printf("go        %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	rootCmd.AddCommand(cmd)
}
