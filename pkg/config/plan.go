package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// ServiceTypeDefault is used for service configs without a type
const ServiceTypeDefault = "dns"

// PlanFile lists the roles a daemon runs
type PlanFile struct {
	Roles []RoleEntry `yaml:"roles"`
}

// RoleEntry is the desired state of one role
type RoleEntry struct {
	Group     string              `yaml:"group"`
	Role      string              `yaml:"role"`
	GUID      string              `yaml:"guid,omitempty"`
	Version   string              `yaml:"version"`
	Global    types.GlobalPlan    `yaml:"global"`
	Versioned types.VersionedPlan `yaml:"versioned"`
}

// Key returns the registry key of the role
func (e *RoleEntry) Key() string {
	return e.Group + "/" + e.Role
}

// Plan returns the role plan of the entry
func (e *RoleEntry) Plan() types.RolePlan {
	return types.RolePlan{Global: e.Global, Versioned: e.Versioned}
}

// LoadPlanFile reads, defaults and validates a YAML plan file
func LoadPlanFile(path string) (*PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlanFile(data)
}

// ParsePlanFile parses a YAML plan file. Roles without a guid get a fresh
// one and services without a name are named <role>.<group>.
func ParsePlanFile(data []byte) (*PlanFile, error) {
	var pf PlanFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	pf.applyDefaults()
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

func (pf *PlanFile) applyDefaults() {
	for i := range pf.Roles {
		e := &pf.Roles[i]
		if e.GUID == "" {
			e.GUID = uuid.New().String()
		}
		for j := range e.Global.ServiceConfigs {
			sc := &e.Global.ServiceConfigs[j]
			if sc.Name == "" {
				sc.Name = e.Role + "." + e.Group
			}
			if sc.Type == "" {
				sc.Type = ServiceTypeDefault
			}
		}
	}
}

// Validate checks every role entry and rejects duplicate roles
func (pf *PlanFile) Validate() error {
	if len(pf.Roles) == 0 {
		return errors.New("plan file has no roles")
	}
	seen := make(map[string]bool, len(pf.Roles))
	guids := make(map[string]string, len(pf.Roles))
	var errs []error
	for i := range pf.Roles {
		e := &pf.Roles[i]
		if e.Group == "" || e.Role == "" {
			errs = append(errs, fmt.Errorf("roles[%d]: group and role are required", i))
			continue
		}
		key := e.Key()
		if seen[key] {
			errs = append(errs, fmt.Errorf("%s: duplicate role", key))
			continue
		}
		seen[key] = true
		if other, ok := guids[e.GUID]; ok {
			errs = append(errs, fmt.Errorf("%s: guid %s already used by %s", key, e.GUID, other))
		}
		guids[e.GUID] = key
		if e.Version == "" {
			errs = append(errs, fmt.Errorf("%s: %w: version is required", key, types.ErrInvalidPlan))
		}
		plan := e.Plan()
		if err := plan.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
