package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/replica"
	"github.com/cuemby/rolekeeper/pkg/role"
	"github.com/cuemby/rolekeeper/pkg/types"
	"github.com/cuemby/rolekeeper/pkg/worker"
)

const plans = `
roles:
  - group: search
    role: qrs
    version: v1
    global: {count: 2, latestVersionRatio: 100}
    versioned:
      resourcePlan: {resources: [{name: cpu, amount: 100}]}
      launchPlan: {processes: [{name: qrs, cmd: /bin/qrs}]}
`

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(plans), 0o600))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "-f", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "search/qrs version v1: 2 replicas, 100% latest")
	assert.Contains(t, out.String(), "1 role(s) valid")
}

func TestPrintStatus(t *testing.T) {
	var out bytes.Buffer
	printStatus(&out, nil)
	assert.Equal(t, "No roles found\n", out.String())

	out.Reset()
	printStatus(&out, []*role.Snapshot{{
		GroupID:       "search",
		RoleID:        "qrs",
		LatestVersion: "v1",
		Global:        types.GlobalPlan{Count: 1},
		Replicas: []replica.Snapshot{{
			ID:      "qrs-00000001",
			Version: "v1",
			Current: worker.Snapshot{
				ID:          "qrs-00000001-w1",
				AllocStatus: worker.AllocAssigned,
				SlotID:      types.SlotID{SlaveAddress: "127.0.0.1:7000", ID: 1},
			},
		}},
	}})
	s := out.String()
	assert.Contains(t, s, "search/qrs")
	assert.Contains(t, s, "qrs-00000001")
	assert.Contains(t, s, "ASSIGNED")
	assert.Contains(t, s, "running")
}

func TestPrintLiveStatus(t *testing.T) {
	var out bytes.Buffer
	printLiveStatus(&out, []role.Status{{
		Key:           "search/qrs",
		LatestVersion: "v2",
		Count:         1,
		Replicas: []replica.Status{{
			ID:      "qrs-00000001",
			Version: "v2",
			Current: worker.Status{
				ID:           "qrs-00000001-w1",
				AllocStatus:  worker.AllocAssigned,
				WorkerStatus: types.WorkerReady,
				Slot:         "127.0.0.1:7000/1",
				BadReason:    worker.BadReasonTagNotMatch,
			},
			Backup: &worker.Status{ID: "qrs-00000001-w2"},
		}},
	}, {Key: "search/searcher", LatestVersion: "v1", Count: 2, Completed: true}})

	s := out.String()
	assert.Contains(t, s, "converging")
	assert.Contains(t, s, "completed")
	assert.Contains(t, s, "recovering(qrs-00000001-w2)")
	assert.Contains(t, s, "bad("+string(worker.BadReasonTagNotMatch)+")")
	assert.Contains(t, s, "WT_READY")
}
