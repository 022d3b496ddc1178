package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVersionedPlan() VersionedPlan {
	return VersionedPlan{
		ResourcePlan: ResourcePlan{
			Resources: []SlotResource{{Name: "cpu", Amount: 400}, {Name: "mem", Amount: 2048}},
		},
		LaunchPlan: LaunchPlan{
			Processes: []ProcessInfo{{
				Name: "server",
				Cmd:  "/bin/server",
				Args: []string{"--port", "8080"},
				Envs: []EnvVar{{Key: "MODE", Value: "prod"}},
			}},
		},
	}
}

func TestRolePlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(p *RolePlan)
		wantErr error
	}{
		{name: "valid", modify: func(p *RolePlan) {}},
		{name: "negative count", modify: func(p *RolePlan) { p.Global.Count = -1 }, wantErr: ErrInvalidPlan},
		{name: "ratio above 100", modify: func(p *RolePlan) { p.Global.LatestVersionRatio = 101 }, wantErr: ErrInvalidPlan},
		{name: "negative min health", modify: func(p *RolePlan) { p.Global.MinHealthCapacity = -5 }, wantErr: ErrInvalidPlan},
		{name: "negative extra ratio", modify: func(p *RolePlan) { p.Global.ExtraRatio = -1 }, wantErr: ErrInvalidPlan},
		{name: "no resources", modify: func(p *RolePlan) { p.Versioned.ResourcePlan.Resources = nil }, wantErr: ErrMissingResource},
		{name: "process without cmd", modify: func(p *RolePlan) { p.Versioned.LaunchPlan.Processes[0].Cmd = "" }, wantErr: ErrInvalidPlan},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := RolePlan{
				Global:    GlobalPlan{Count: 3, LatestVersionRatio: 100},
				Versioned: testVersionedPlan(),
			}
			tt.modify(&p)
			err := p.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestGlobalPlanSmoothRecover(t *testing.T) {
	g := GlobalPlan{}
	assert.True(t, g.SmoothRecover())

	g.Properties = map[string]string{PropertySmoothRecover: "false"}
	assert.False(t, g.SmoothRecover())

	g.Properties[PropertySmoothRecover] = "garbage"
	assert.True(t, g.SmoothRecover())
}

func TestGlobalPlanQuotaConfig(t *testing.T) {
	g := GlobalPlan{}
	assert.Equal(t, DefaultBrokenRecoverQuotaConfig(), g.QuotaConfig())

	g.BrokenRecoverQuotaConfig = &BrokenRecoverQuotaConfig{MaxFailedCount: 2, TimeWindow: 60}
	assert.Equal(t, int32(2), g.QuotaConfig().MaxFailedCount)
	assert.Equal(t, "1m0s", g.QuotaConfig().Window().String())
}

func TestGlobalPlanCloneIsDeep(t *testing.T) {
	g := GlobalPlan{
		Count:                    2,
		ServiceConfigs:           []ServiceConfig{{Name: "web"}},
		BrokenRecoverQuotaConfig: &BrokenRecoverQuotaConfig{MaxFailedCount: 1},
		Properties:               map[string]string{"a": "b"},
	}
	c := g.Clone()
	c.ServiceConfigs[0].Name = "changed"
	c.BrokenRecoverQuotaConfig.MaxFailedCount = 9
	c.Properties["a"] = "z"

	assert.Equal(t, "web", g.ServiceConfigs[0].Name)
	assert.Equal(t, int32(1), g.BrokenRecoverQuotaConfig.MaxFailedCount)
	assert.Equal(t, "b", g.Properties["a"])
}

func TestVersionedPlanOnline(t *testing.T) {
	v := VersionedPlan{}
	assert.True(t, v.IsOnline())
	assert.False(t, v.IsUpdatingGracefully())

	off := false
	v.Online = &off
	assert.False(t, v.IsOnline())

	c := v.Clone()
	*c.Online = true
	assert.False(t, v.IsOnline())
}

func TestLaunchPlanWithProcessTag(t *testing.T) {
	plan := testVersionedPlan().LaunchPlan

	tagged := plan.WithProcessTag("r-00000001-w1")
	require.Len(t, tagged.Processes[0].Envs, 2)
	assert.Equal(t, EnvVar{Key: ProcessTagEnv, Value: "r-00000001-w1"}, tagged.Processes[0].Envs[1])
	assert.Len(t, plan.Processes[0].Envs, 1, "source plan must not be modified")

	retagged := tagged.WithProcessTag("other")
	require.Len(t, retagged.Processes[0].Envs, 2)
	assert.Equal(t, "other", retagged.Processes[0].Envs[1].Value)
}

func TestLaunchPlanSignature(t *testing.T) {
	plan := testVersionedPlan().LaunchPlan
	assert.Equal(t, plan.Signature(), plan.Clone().Signature())
	assert.NotEqual(t, plan.Signature(), plan.WithProcessTag("w1").Signature())
	assert.NotEqual(t, plan.WithProcessTag("w1").Signature(), plan.WithProcessTag("w2").Signature())
}

func TestNewExtVersionedPlan(t *testing.T) {
	plan := testVersionedPlan()
	ext := NewExtVersionedPlan("role-guid", plan)

	assert.Equal(t, ResourceChecksum(plan.ResourcePlan), ext.ResourceChecksum)
	assert.Len(t, ext.ResourceChecksum, 16)
	assert.True(t, strings.HasPrefix(ext.ResourceTag, "role-guid."))
	assert.Equal(t, "role-guid."+ext.ResourceChecksum[:8], ext.ResourceTag)
	assert.NotEmpty(t, ext.ProcessVersion)

	// same resources, different launch plan: same tag
	other := testVersionedPlan()
	other.LaunchPlan.Processes[0].Args = []string{"--port", "9090"}
	ext2 := NewExtVersionedPlan("role-guid", other)
	assert.Equal(t, ext.ResourceTag, ext2.ResourceTag)
	assert.NotEqual(t, ext.ProcessVersion, ext2.ProcessVersion)

	// different resources: different tag
	other.ResourcePlan.Resources[0].Amount = 800
	ext3 := NewExtVersionedPlan("role-guid", other)
	assert.NotEqual(t, ext.ResourceTag, ext3.ResourceTag)
}

func TestExtVersionedPlanMergeBroadcast(t *testing.T) {
	ext := NewExtVersionedPlan("g", testVersionedPlan())
	tag, sum := ext.ResourceTag, ext.ResourceChecksum

	push := testVersionedPlan()
	push.ResourcePlan.Resources[0].Amount = 1
	push.CustomInfo = "hello"
	push.NotReadyTimeout = 30
	ext.MergeBroadcast(push)

	assert.Equal(t, "hello", ext.Plan.CustomInfo)
	assert.Equal(t, int64(30), ext.Plan.NotReadyTimeout)
	assert.Equal(t, int64(400), ext.Plan.ResourcePlan.Resources[0].Amount)
	assert.Equal(t, tag, ext.ResourceTag)
	assert.Equal(t, sum, ext.ResourceChecksum)
}

func TestExtVersionedPlanFixChecksum(t *testing.T) {
	ext := NewExtVersionedPlan("g", testVersionedPlan())
	tag := ext.ResourceTag
	ext.ResourceChecksum = "stale"
	ext.FixChecksum("g")

	assert.Equal(t, ResourceChecksum(ext.Plan.ResourcePlan), ext.ResourceChecksum)
	assert.Equal(t, tag, ext.ResourceTag)
}

func TestSlotIDOrdering(t *testing.T) {
	a := SlotID{SlaveAddress: "10.0.0.1:7000", ID: 2}
	b := SlotID{SlaveAddress: "10.0.0.1:7000", ID: 10}
	c := SlotID{SlaveAddress: "10.0.0.2:7000", ID: 1}

	assert.Negative(t, a.Compare(b))
	assert.Negative(t, b.Compare(c))
	assert.Zero(t, a.Compare(a))
	assert.Equal(t, "10.0.0.1:7000#2", a.String())
	assert.Equal(t, "10.0.0.1", a.Host())
	assert.True(t, SlotID{}.IsEmpty())
}

func TestSlotInfoStatus(t *testing.T) {
	tests := []struct {
		name string
		slot SlotInfo
		want SlotStatus
	}{
		{"dead slave wins", SlotInfo{SlaveStatus: SlaveDead, ProcessStatus: ProcessRunning}, SlotDead},
		{"package failed", SlotInfo{SlaveStatus: SlaveAlive, PackageStatus: PackageFailed}, SlotPackageFailed},
		{"data failed", SlotInfo{SlaveStatus: SlaveAlive, DataStatus: DataFailed}, SlotPackageFailed},
		{"process failed", SlotInfo{SlaveStatus: SlaveAlive, ProcessStatus: ProcessFailed}, SlotProcFailed},
		{"restarting", SlotInfo{SlaveStatus: SlaveAlive, ProcessStatus: ProcessRestarting}, SlotRestarting},
		{"running", SlotInfo{SlaveStatus: SlaveAlive, ProcessStatus: ProcessRunning}, SlotRunning},
		{"unknown", SlotInfo{}, SlotUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.slot.Status())
		})
	}
}

func TestScheduleParamsHoldingSum(t *testing.T) {
	p := ScheduleParams{HoldingCountMap: map[string]int32{"v1": 2, "v2": 3}}
	assert.Equal(t, int32(5), p.HoldingSum())
	assert.Equal(t, int32(0), (&ScheduleParams{}).HoldingSum())
}
