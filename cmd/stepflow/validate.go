package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/stepflow-dev/stepflow/internal/validator"
	"github.com/stepflow-dev/stepflow/pkg/flowcfg"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check flow configs for consistency",
	Long:  `Crawls each flow graph and reports dangling edge targets, unreachable steps, and missing wiring.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(cmd, args); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("All flows are valid.")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		flow, err := flowcfg.LoadFile(args[0])
		if err != nil {
			return err
		}
		return validator.ValidateFlow(flow)
	}

	dir, _ := cmd.Flags().GetString("flows")
	flows, err := flowcfg.LoadDir(dir)
	if err != nil {
		return err
	}
	if len(flows) == 0 {
		return fmt.Errorf("no flow configs found in %s", dir)
	}
	for slug, flow := range flows {
		if err := validator.ValidateFlow(flow); err != nil {
			return fmt.Errorf("flow %q: %w", slug, err)
		}
	}
	return nil
}
