package types

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrMissingResource is returned for a resource plan without any slot resource
	ErrMissingResource = errors.New("missing primary resource group")

	// ErrInvalidPlan is returned for plans that fail validation
	ErrInvalidPlan = errors.New("invalid plan")
)

// PropertySmoothRecover is the GlobalPlan property controlling recovery
// policy. When false the broken worker is released as soon as its backup
// is created.
const PropertySmoothRecover = "smoothRecover"

// RolePlan is the unit of desired state pushed to a role
type RolePlan struct {
	Global    GlobalPlan    `json:"global" yaml:"global"`
	Versioned VersionedPlan `json:"versioned" yaml:"versioned"`
}

// Validate checks the plan for configuration errors
func (p *RolePlan) Validate() error {
	if p.Global.Count < 0 {
		return fmt.Errorf("%w: negative count %d", ErrInvalidPlan, p.Global.Count)
	}
	if p.Global.LatestVersionRatio < 0 || p.Global.LatestVersionRatio > 100 {
		return fmt.Errorf("%w: latestVersionRatio %d out of [0,100]", ErrInvalidPlan, p.Global.LatestVersionRatio)
	}
	if p.Global.MinHealthCapacity < 0 || p.Global.MinHealthCapacity > 100 {
		return fmt.Errorf("%w: minHealthCapacity %d out of [0,100]", ErrInvalidPlan, p.Global.MinHealthCapacity)
	}
	if p.Global.ExtraRatio < 0 {
		return fmt.Errorf("%w: negative extraRatio %d", ErrInvalidPlan, p.Global.ExtraRatio)
	}
	if len(p.Versioned.ResourcePlan.Resources) == 0 {
		return ErrMissingResource
	}
	for _, proc := range p.Versioned.LaunchPlan.Processes {
		if proc.Cmd == "" {
			return fmt.Errorf("%w: process %q has no command", ErrInvalidPlan, proc.Name)
		}
	}
	return nil
}

// GlobalPlan holds the role-wide desired state shared by every version
type GlobalPlan struct {
	Count                    int32                     `json:"count" yaml:"count"`
	LatestVersionRatio       int32                     `json:"latestVersionRatio" yaml:"latestVersionRatio"` // 0-100
	MinHealthCapacity        int32                     `json:"minHealthCapacity,omitempty" yaml:"minHealthCapacity,omitempty"`
	ExtraRatio               int32                     `json:"extraRatio,omitempty" yaml:"extraRatio,omitempty"`
	HealthCheckerConfig      HealthCheckerConfig       `json:"healthCheckerConfig" yaml:"healthCheckerConfig"`
	ServiceConfigs           []ServiceConfig           `json:"serviceConfigs,omitempty" yaml:"serviceConfigs,omitempty"`
	BrokenRecoverQuotaConfig *BrokenRecoverQuotaConfig `json:"brokenRecoverQuotaConfig,omitempty" yaml:"brokenRecoverQuotaConfig,omitempty"`
	Properties               map[string]string         `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// SmoothRecover reports whether a broken worker keeps running until its
// replacement is ready. Defaults to true.
func (g *GlobalPlan) SmoothRecover() bool {
	v, ok := g.Properties[PropertySmoothRecover]
	if !ok {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// QuotaConfig returns the broken recover quota config, falling back to the default
func (g *GlobalPlan) QuotaConfig() BrokenRecoverQuotaConfig {
	if g.BrokenRecoverQuotaConfig == nil {
		return DefaultBrokenRecoverQuotaConfig()
	}
	return *g.BrokenRecoverQuotaConfig
}

// Clone returns a deep copy of the plan
func (g GlobalPlan) Clone() GlobalPlan {
	out := g
	if g.ServiceConfigs != nil {
		out.ServiceConfigs = append([]ServiceConfig(nil), g.ServiceConfigs...)
	}
	if g.BrokenRecoverQuotaConfig != nil {
		cfg := *g.BrokenRecoverQuotaConfig
		out.BrokenRecoverQuotaConfig = &cfg
	}
	if g.Properties != nil {
		out.Properties = make(map[string]string, len(g.Properties))
		for k, v := range g.Properties {
			out.Properties[k] = v
		}
	}
	return out
}

// BrokenRecoverQuotaConfig bounds how many broken workers may be replaced
// within a sliding time window
type BrokenRecoverQuotaConfig struct {
	MaxFailedCount int32 `json:"maxFailedCount" yaml:"maxFailedCount"` // negative means unlimited
	TimeWindow     int32 `json:"timeWindow" yaml:"timeWindow"`         // seconds
}

// DefaultBrokenRecoverQuotaConfig returns the quota used when a plan sets none
func DefaultBrokenRecoverQuotaConfig() BrokenRecoverQuotaConfig {
	return BrokenRecoverQuotaConfig{
		MaxFailedCount: 5,
		TimeWindow:     600,
	}
}

// Window returns the time window as a duration
func (c BrokenRecoverQuotaConfig) Window() time.Duration {
	return time.Duration(c.TimeWindow) * time.Second
}

// HealthCheckType defines how worker health is judged
type HealthCheckType string

const (
	// HealthCheckDefault derives health from the slot's process status
	HealthCheckDefault HealthCheckType = "default"
	HealthCheckHTTP    HealthCheckType = "http"
	HealthCheckTCP     HealthCheckType = "tcp"
)

// HealthCheckerConfig configures the role's health checker
type HealthCheckerConfig struct {
	Type            HealthCheckType `json:"type,omitempty" yaml:"type,omitempty"`
	Port            int32           `json:"port,omitempty" yaml:"port,omitempty"`
	Path            string          `json:"path,omitempty" yaml:"path,omitempty"`
	IntervalSeconds int32           `json:"intervalSeconds,omitempty" yaml:"intervalSeconds,omitempty"`
	TimeoutSeconds  int32           `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
	Retries         int32           `json:"retries,omitempty" yaml:"retries,omitempty"`
}

// ServiceConfig describes one service-discovery publication of the role
type ServiceConfig struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"` // "dns" or "memory"
	Port int32  `json:"port,omitempty" yaml:"port,omitempty"`
}

// VersionedPlan is the immutable-per-version part of the desired state
type VersionedPlan struct {
	ResourcePlan ResourcePlan `json:"resourcePlan" yaml:"resourcePlan"`
	LaunchPlan   LaunchPlan   `json:"launchPlan" yaml:"launchPlan"`

	// Broadcast fields, merged in place on same-version pushes
	CustomInfo         string `json:"customInfo,omitempty" yaml:"customInfo,omitempty"`
	UserDefVersion     string `json:"userDefVersion,omitempty" yaml:"userDefVersion,omitempty"`
	Online             *bool  `json:"online,omitempty" yaml:"online,omitempty"`
	UpdatingGracefully *bool  `json:"updatingGracefully,omitempty" yaml:"updatingGracefully,omitempty"`
	NotMatchTimeout    int64  `json:"notMatchTimeout,omitempty" yaml:"notMatchTimeout,omitempty"` // seconds
	NotReadyTimeout    int64  `json:"notReadyTimeout,omitempty" yaml:"notReadyTimeout,omitempty"` // seconds
}

// IsOnline reports whether workers of this version should be published
func (v *VersionedPlan) IsOnline() bool {
	return v.Online == nil || *v.Online
}

// IsUpdatingGracefully reports whether workers unpublish before an update
func (v *VersionedPlan) IsUpdatingGracefully() bool {
	return v.UpdatingGracefully != nil && *v.UpdatingGracefully
}

// Clone returns a deep copy of the plan
func (v VersionedPlan) Clone() VersionedPlan {
	out := v
	out.ResourcePlan = v.ResourcePlan.Clone()
	out.LaunchPlan = v.LaunchPlan.Clone()
	if v.Online != nil {
		b := *v.Online
		out.Online = &b
	}
	if v.UpdatingGracefully != nil {
		b := *v.UpdatingGracefully
		out.UpdatingGracefully = &b
	}
	return out
}

// ResourcePlan defines what one slot of the role requires
type ResourcePlan struct {
	Resources []SlotResource `json:"resources" yaml:"resources"`
	Queue     string         `json:"queue,omitempty" yaml:"queue,omitempty"`
	Priority  int32          `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Clone returns a deep copy of the plan
func (r ResourcePlan) Clone() ResourcePlan {
	out := r
	out.Resources = append([]SlotResource(nil), r.Resources...)
	return out
}

// SlotResource is a named resource amount (e.g. cpu=400, mem=2048)
type SlotResource struct {
	Name   string `json:"name" yaml:"name"`
	Amount int64  `json:"amount" yaml:"amount"`
}

// ResourceRequest is sent to the scheduler once per resource tag
type ResourceRequest struct {
	Tag           string       `json:"tag"`
	Count         int32        `json:"count"`
	Plan          ResourcePlan `json:"plan"`
	RequirementID string       `json:"requirementId"`
}

// ScheduleParams is the per-cycle input of Role.Schedule
type ScheduleParams struct {
	HoldingCountMap map[string]int32
	MinHealthCount  int32
	MaxCount        int32
	TimeStamp       time.Time
}

// HoldingSum returns the total of all holding counts
func (p *ScheduleParams) HoldingSum() int32 {
	var sum int32
	for _, c := range p.HoldingCountMap {
		sum += c
	}
	return sum
}

// HealthStatus is a high-level summary of a worker's health
type HealthStatus string

const (
	HealthUnknown HealthStatus = "HT_UNKNOWN"
	HealthLost    HealthStatus = "HT_LOST"
	HealthAlive   HealthStatus = "HT_ALIVE"
	HealthDead    HealthStatus = "HT_DEAD"
)

// WorkerStatus reports whether the process inside a slot is ready
type WorkerStatus string

const (
	WorkerUnknown  WorkerStatus = "WT_UNKNOWN"
	WorkerNotReady WorkerStatus = "WT_NOT_READY"
	WorkerReady    WorkerStatus = "WT_READY"
)

// HealthInfo is produced by a health checker for one worker
type HealthInfo struct {
	HealthStatus HealthStatus `json:"healthStatus"`
	WorkerStatus WorkerStatus `json:"workerStatus"`
	Version      string       `json:"version,omitempty"`
}

// ServiceStatus is the service-discovery state of a worker
type ServiceStatus string

const (
	ServiceUnknown       ServiceStatus = "SVT_UNKNOWN"
	ServiceUnavailable   ServiceStatus = "SVT_UNAVAILABLE"
	ServicePartAvailable ServiceStatus = "SVT_PART_AVAILABLE"
	ServiceAvailable     ServiceStatus = "SVT_AVAILABLE"
)

// ServiceInfo is produced by a service switch for one worker
type ServiceInfo struct {
	Status ServiceStatus `json:"status"`
	Score  int64         `json:"score"`
}

// WorkerSnapshot is the read-only view of a worker handed to the
// health checker and service switch
type WorkerSnapshot struct {
	NodeID         string
	ReplicaID      string
	Version        string
	SlotID         SlotID
	Slot           *SlotInfo
	Assigned       bool
	Releasing      bool
	Offline        bool // worker asked to be unpublished
	Online         bool // plan wants the worker published
	ProcessRunning bool
	Ready          bool // health alive and worker ready
}

// Publishable reports whether a service switch should publish the worker
func (w WorkerSnapshot) Publishable() bool {
	return w.Assigned && !w.Releasing && !w.Offline && w.Online && w.Ready
}
