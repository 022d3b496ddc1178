package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rolekeeper/pkg/types"
)

func TestLoadDaemonDefaults(t *testing.T) {
	cfg, err := LoadDaemon()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogJSON)
	assert.Equal(t, "./rolekeeper-data", cfg.DataDir)
	assert.Equal(t, time.Second, cfg.ScheduleInterval)
	assert.Equal(t, 3*time.Second, cfg.UpdateInterval)
	assert.Equal(t, 10*time.Second, cfg.CycleTimeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "rolekeeper", cfg.DNSDomain)
	assert.Empty(t, cfg.DNSAddr)
	assert.Equal(t, "127.0.0.1:7950", cfg.APIAddr)
	assert.False(t, cfg.APIWritable)
}

func TestLoadDaemonFromEnv(t *testing.T) {
	t.Setenv("ROLEKEEPER_DATA_DIR", "/var/lib/rolekeeper")
	t.Setenv("ROLEKEEPER_SCHEDULE_INTERVAL", "250ms")
	t.Setenv("ROLEKEEPER_WORKERS", "3")

	cfg, err := LoadDaemon()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/rolekeeper", cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.ScheduleInterval)
	assert.Equal(t, 3, cfg.Workers)
}

func TestDaemonValidate(t *testing.T) {
	valid := Daemon{DataDir: "d", ScheduleInterval: time.Second, UpdateInterval: time.Second, CycleTimeout: time.Second, Workers: 1, APIAddr: "127.0.0.1:7950"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Daemon)
	}{
		{"no data dir", func(d *Daemon) { d.DataDir = "" }},
		{"zero interval", func(d *Daemon) { d.UpdateInterval = 0 }},
		{"zero timeout", func(d *Daemon) { d.CycleTimeout = 0 }},
		{"no workers", func(d *Daemon) { d.Workers = 0 }},
		{"no api addr", func(d *Daemon) { d.APIAddr = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.Error(t, d.Validate())
		})
	}
}

const samplePlans = `
roles:
  - group: search
    role: qrs
    guid: 6f1c2a9e-qrs
    version: v1
    global:
      count: 4
      latestVersionRatio: 50
      minHealthCapacity: 75
      healthCheckerConfig:
        type: http
        port: 8080
        path: /status
      serviceConfigs:
        - port: 8080
      brokenRecoverQuotaConfig:
        maxFailedCount: 2
        timeWindow: 60
    versioned:
      resourcePlan:
        resources:
          - name: cpu
            amount: 200
      launchPlan:
        processes:
          - name: qrs
            cmd: /usr/bin/qrs
            args: ["--port", "8080"]
  - group: search
    role: searcher
    version: v7
    global:
      count: 2
    versioned:
      resourcePlan:
        resources:
          - name: mem
            amount: 1024
      launchPlan:
        processes:
          - name: searcher
            cmd: /usr/bin/searcher
`

func TestParsePlanFile(t *testing.T) {
	pf, err := ParsePlanFile([]byte(samplePlans))
	require.NoError(t, err)
	require.Len(t, pf.Roles, 2)

	qrs := pf.Roles[0]
	assert.Equal(t, "search/qrs", qrs.Key())
	assert.Equal(t, "6f1c2a9e-qrs", qrs.GUID)
	assert.Equal(t, int32(4), qrs.Global.Count)
	assert.Equal(t, types.HealthCheckHTTP, qrs.Global.HealthCheckerConfig.Type)
	require.Len(t, qrs.Global.ServiceConfigs, 1)
	assert.Equal(t, types.ServiceConfig{Name: "qrs.search", Type: "dns", Port: 8080}, qrs.Global.ServiceConfigs[0])
	require.NotNil(t, qrs.Global.BrokenRecoverQuotaConfig)
	assert.Equal(t, int32(2), qrs.Global.BrokenRecoverQuotaConfig.MaxFailedCount)
	assert.Equal(t, []string{"--port", "8080"}, qrs.Versioned.LaunchPlan.Processes[0].Args)

	searcher := pf.Roles[1]
	assert.NotEmpty(t, searcher.GUID, "missing guid is generated")
	assert.NotEqual(t, qrs.GUID, searcher.GUID)
	assert.Equal(t, int64(1024), searcher.Plan().Versioned.ResourcePlan.Resources[0].Amount)
}

func TestParsePlanFileErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "roles: []"},
		{"not yaml", "\troles: x"},
		{"missing role", `
roles:
  - group: search
    version: v1`},
		{"missing version", `
roles:
  - group: search
    role: qrs
    versioned:
      resourcePlan: {resources: [{name: cpu, amount: 1}]}`},
		{"missing resources", `
roles:
  - group: search
    role: qrs
    version: v1`},
		{"duplicate", `
roles:
  - {group: search, role: qrs, version: v1, versioned: {resourcePlan: {resources: [{name: cpu, amount: 1}]}}}
  - {group: search, role: qrs, version: v2, versioned: {resourcePlan: {resources: [{name: cpu, amount: 1}]}}}`},
		{"ratio out of range", `
roles:
  - group: search
    role: qrs
    version: v1
    global: {count: 1, latestVersionRatio: 120}
    versioned: {resourcePlan: {resources: [{name: cpu, amount: 1}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlanFile([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(samplePlans), 0o600))

	pf, err := LoadPlanFile(path)
	require.NoError(t, err)
	assert.Len(t, pf.Roles, 2)

	_, err = LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
