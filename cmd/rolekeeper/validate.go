package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/rolekeeper/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a plan file",
	Long: `Validate parses a plan file and checks every role in it.

Examples:
  rolekeeper validate -f plans.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		plans, err := config.LoadPlanFile(file)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, e := range plans.Roles {
			fmt.Fprintf(out, "✓ %s version %s: %d replicas, %d%% latest, %d service(s)\n",
				e.Key(), e.Version, e.Global.Count, e.Global.LatestVersionRatio, len(e.Global.ServiceConfigs))
		}
		fmt.Fprintf(out, "%d role(s) valid\n", len(plans.Roles))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringP("file", "f", "", "YAML plan file (required)")
	_ = validateCmd.MarkFlagRequired("file")
}
