package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/rolekeeper/pkg/client"
	"github.com/cuemby/rolekeeper/pkg/config"
	"github.com/cuemby/rolekeeper/pkg/role"
	"github.com/cuemby/rolekeeper/pkg/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status [GROUP/ROLE]",
	Short: "Show the state of roles",
	Long: `Status asks a running daemon for the live state of its roles over the
status API.

With --data-dir it reads the persisted role snapshots instead. The store is
opened read-only and a running daemon holds it locked, so this only works
while the daemon is down.

Examples:
  rolekeeper status
  rolekeeper status search/qrs --json
  rolekeeper status --data-dir ./rolekeeper-data`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("addr", "", "Status API address of the daemon")
	statusCmd.Flags().String("data-dir", "", "Read persisted snapshots from this data directory instead")
	statusCmd.Flags().Bool("json", false, "Print as JSON")
	statusCmd.Flags().Duration("timeout", 5*time.Second, "Timeout of the API call")
}

func runStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		return runSnapshotStatus(cmd, dataDir, args, asJSON)
	}

	c, err := dialDaemon(cmd)
	if err != nil {
		return err
	}
	defer c.Close()
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var statuses []role.Status
	if len(args) == 1 {
		st, err := c.GetRole(ctx, args[0])
		if err != nil {
			return err
		}
		statuses = append(statuses, st)
	} else {
		statuses, err = c.ListRoles(ctx)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, statuses)
	}
	printLiveStatus(out, statuses)
	return nil
}

// dialDaemon connects to --addr, or to the configured API address
func dialDaemon(cmd *cobra.Command) (*client.Client, error) {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		cfg, err := config.LoadDaemon()
		if err != nil {
			return nil, err
		}
		addr = cfg.APIAddr
	}
	return client.NewClient(addr)
}

func runSnapshotStatus(cmd *cobra.Command, dataDir string, args []string, asJSON bool) error {
	store, err := storage.OpenReadOnly(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	var recs []*storage.RoleRecord
	if len(args) == 1 {
		rec, err := store.GetRole(args[0])
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	} else {
		recs, err = store.ListRoles()
		if err != nil {
			return err
		}
	}

	snaps := make([]*role.Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := role.DecodeSnapshot(rec.Snapshot)
		if err != nil {
			return fmt.Errorf("role %s: %w", rec.Key, err)
		}
		snaps = append(snaps, snap)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, snaps)
	}
	printStatus(out, snaps)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printLiveStatus(out io.Writer, statuses []role.Status) {
	if len(statuses) == 0 {
		fmt.Fprintln(out, "No roles found")
		return
	}
	fmt.Fprintf(out, "%-30s %-10s %-6s %-9s %s\n", "ROLE", "VERSION", "COUNT", "REPLICAS", "STATE")
	for _, s := range statuses {
		state := "converging"
		switch {
		case s.Stopped:
			state = "stopping"
		case s.Completed:
			state = "completed"
		}
		fmt.Fprintf(out, "%-30s %-10s %-6d %-9d %s\n", s.Key, s.LatestVersion, s.Count, len(s.Replicas), state)
		for _, r := range s.Replicas {
			flags := ""
			if r.Releasing {
				flags = " releasing"
			}
			if r.Backup != nil {
				flags += " recovering(" + r.Backup.ID + ")"
			}
			if r.Current.BadReason != "" {
				flags += " bad(" + string(r.Current.BadReason) + ")"
			}
			fmt.Fprintf(out, "  %-28s %-10s %-10s %-10s %s%s\n",
				r.ID, r.Version, r.Current.AllocStatus, r.Current.WorkerStatus, r.Current.Slot, flags)
		}
	}
}

func printStatus(out io.Writer, snaps []*role.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No roles found")
		return
	}
	fmt.Fprintf(out, "%-30s %-10s %-6s %-9s %s\n", "ROLE", "VERSION", "COUNT", "REPLICAS", "STATE")
	for _, s := range snaps {
		state := "running"
		if s.Stopped {
			state = "stopping"
		}
		fmt.Fprintf(out, "%-30s %-10s %-6d %-9d %s\n",
			s.GroupID+"/"+s.RoleID, s.LatestVersion, s.Global.Count, len(s.Replicas), state)
		for _, r := range s.Replicas {
			flags := ""
			if r.Releasing {
				flags = " releasing"
			}
			if r.Backup != nil {
				flags += " recovering(" + r.Backup.ID + ")"
			}
			fmt.Fprintf(out, "  %-28s %-10s %-10s %s%s\n",
				r.ID, r.Version, r.Current.AllocStatus, r.Current.SlotID.String(), flags)
		}
	}
}
