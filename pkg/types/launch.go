package types

import (
	"encoding/json"

	"github.com/cespare/xxhash/v2"
)

// ProcessTagEnv is injected into every launched process so operators can
// map an OS process back to the worker node that produced it
const ProcessTagEnv = "ROLEKEEPER_WORKER_NODE_ID"

// LaunchPlan describes what runs inside a slot
type LaunchPlan struct {
	Processes []ProcessInfo `json:"processes" yaml:"processes"`
	Packages  []PackageInfo `json:"packages,omitempty" yaml:"packages,omitempty"`
	Datas     []DataInfo    `json:"datas,omitempty" yaml:"datas,omitempty"`
}

// ProcessInfo is one process of a launch plan
type ProcessInfo struct {
	Name     string   `json:"name" yaml:"name"`
	Cmd      string   `json:"cmd" yaml:"cmd"`
	Args     []string `json:"args,omitempty" yaml:"args,omitempty"`
	Envs     []EnvVar `json:"envs,omitempty" yaml:"envs,omitempty"`
	IsDaemon bool     `json:"isDaemon" yaml:"isDaemon"`
}

// EnvVar is an ordered environment entry
type EnvVar struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// PackageInfo is a package installed before launch
type PackageInfo struct {
	URI  string `json:"uri" yaml:"uri"`
	Type string `json:"type" yaml:"type"`
}

// DataInfo is a dataset deployed into the slot
type DataInfo struct {
	Name string `json:"name" yaml:"name"`
	Src  string `json:"src" yaml:"src"`
	Dst  string `json:"dst" yaml:"dst"`
}

// Clone returns a deep copy of the launch plan
func (l LaunchPlan) Clone() LaunchPlan {
	out := LaunchPlan{
		Packages: append([]PackageInfo(nil), l.Packages...),
		Datas:    append([]DataInfo(nil), l.Datas...),
	}
	if l.Processes != nil {
		out.Processes = make([]ProcessInfo, len(l.Processes))
		for i, p := range l.Processes {
			p.Args = append([]string(nil), p.Args...)
			p.Envs = append([]EnvVar(nil), p.Envs...)
			out.Processes[i] = p
		}
	}
	return out
}

// WithProcessTag returns a copy of the plan whose processes carry the
// worker node id in ProcessTagEnv
func (l LaunchPlan) WithProcessTag(workerID string) LaunchPlan {
	out := l.Clone()
	for i := range out.Processes {
		envs := out.Processes[i].Envs[:0:0]
		for _, e := range out.Processes[i].Envs {
			if e.Key != ProcessTagEnv {
				envs = append(envs, e)
			}
		}
		out.Processes[i].Envs = append(envs, EnvVar{Key: ProcessTagEnv, Value: workerID})
	}
	return out
}

// Signature returns a stable hash of the plan
func (l LaunchPlan) Signature() int64 {
	return int64(checksum(l))
}

// checksum hashes the canonical JSON encoding of v
func checksum(v interface{}) uint64 {
	data, err := json.Marshal(v)
	if err != nil {
		// Plain structs of strings and numbers always marshal
		panic(err)
	}
	return xxhash.Sum64(data)
}
