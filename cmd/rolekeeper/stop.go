package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop GROUP/ROLE",
	Short: "Stop a role of a running daemon",
	Long: `Stop releases every replica of a role. The daemon removes the role once
all its slots are given back. The daemon must run with --api-writable.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().String("addr", "", "Status API address of the daemon")
	stopCmd.Flags().Duration("timeout", 5*time.Second, "Timeout of the API call")
}

func runStop(cmd *cobra.Command, args []string) error {
	c, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if err := c.StopRole(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Role %s stopping\n", args[0])
	return nil
}
