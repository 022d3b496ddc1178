package types

import (
	"cmp"
	"fmt"
	"strings"
)

// SlotID identifies one scheduler slot
type SlotID struct {
	SlaveAddress string `json:"slaveAddress"`
	ID           int32  `json:"slotId"`
}

// IsEmpty reports whether the id is unset
func (s SlotID) IsEmpty() bool {
	return s.SlaveAddress == "" && s.ID == 0
}

// String returns the slot id as "address#id"
func (s SlotID) String() string {
	return fmt.Sprintf("%s#%d", s.SlaveAddress, s.ID)
}

// Host returns the slave host without port
func (s SlotID) Host() string {
	if i := strings.LastIndex(s.SlaveAddress, ":"); i >= 0 {
		return s.SlaveAddress[:i]
	}
	return s.SlaveAddress
}

// Compare orders slot ids by slave address, then id
func (s SlotID) Compare(o SlotID) int {
	if c := strings.Compare(s.SlaveAddress, o.SlaveAddress); c != 0 {
		return c
	}
	return cmp.Compare(s.ID, o.ID)
}

// SlaveStatus is the health of the machine hosting a slot
type SlaveStatus string

const (
	SlaveUnknown SlaveStatus = "UNKNOWN"
	SlaveAlive   SlaveStatus = "ALIVE"
	SlaveDead    SlaveStatus = "DEAD"
)

// ProcessStatus is the status of the processes launched in a slot
type ProcessStatus string

const (
	ProcessUnknown    ProcessStatus = "PS_UNKNOWN"
	ProcessRunning    ProcessStatus = "PS_RUNNING"
	ProcessRestarting ProcessStatus = "PS_RESTARTING"
	ProcessStopped    ProcessStatus = "PS_STOPPED"
	ProcessFailed     ProcessStatus = "PS_FAILED"
	ProcessTerminated ProcessStatus = "PS_TERMINATED"
)

// PackageStatus is the install status of the slot's packages
type PackageStatus string

const (
	PackageUnknown    PackageStatus = "IS_UNKNOWN"
	PackageWaiting    PackageStatus = "IS_WAITING"
	PackageInstalling PackageStatus = "IS_INSTALLING"
	PackageInstalled  PackageStatus = "IS_INSTALLED"
	PackageFailed     PackageStatus = "IS_FAILED"
)

// DataStatus is the deploy status of the slot's data
type DataStatus string

const (
	DataUnknown   DataStatus = "DS_UNKNOWN"
	DataDeploying DataStatus = "DS_DEPLOYING"
	DataFinished  DataStatus = "DS_FINISHED"
	DataFailed    DataStatus = "DS_FAILED"
)

// SlotStatus folds slave, package and process status into one value
type SlotStatus string

const (
	SlotPackageFailed SlotStatus = "SS_PACKAGE_FAILED"
	SlotProcFailed    SlotStatus = "SS_PROC_FAILED"
	SlotDead          SlotStatus = "SS_DEAD"
	SlotRestarting    SlotStatus = "SS_RESTARTING"
	SlotUnknown       SlotStatus = "SS_UNKNOWN"
	SlotRunning       SlotStatus = "SS_RUNNING"
)

// SlotPreference is the scheduler-side preference attached to a slot
type SlotPreference string

const (
	PreferenceNormal  SlotPreference = "PREF_NORMAL"
	PreferenceRelease SlotPreference = "PREF_RELEASE"
)

// SlotInfo is the scheduler's view of one slot
type SlotInfo struct {
	Role            string         `json:"role"`
	ResourceTag     string         `json:"resourceTag"`
	SlotID          SlotID         `json:"slotId"`
	SlaveStatus     SlaveStatus    `json:"slaveStatus"`
	ProcessStatus   ProcessStatus  `json:"processStatus"`
	PackageStatus   PackageStatus  `json:"packageStatus"`
	DataStatus      DataStatus     `json:"dataStatus"`
	Reclaiming      bool           `json:"reclaiming"`
	Resources       []SlotResource `json:"resources,omitempty"`
	RequirementID   string         `json:"requirementId"`
	LaunchSignature int64          `json:"launchSignature"`
	Preference      SlotPreference `json:"preference,omitempty"`
}

// Status returns the folded slot status
func (s *SlotInfo) Status() SlotStatus {
	switch {
	case s.SlaveStatus == SlaveDead:
		return SlotDead
	case s.PackageStatus == PackageFailed || s.DataStatus == DataFailed:
		return SlotPackageFailed
	case s.ProcessStatus == ProcessFailed || s.ProcessStatus == ProcessTerminated:
		return SlotProcFailed
	case s.ProcessStatus == ProcessRestarting:
		return SlotRestarting
	case s.ProcessStatus == ProcessRunning:
		return SlotRunning
	default:
		return SlotUnknown
	}
}

// Clone returns a deep copy of the slot info
func (s SlotInfo) Clone() SlotInfo {
	out := s
	out.Resources = append([]SlotResource(nil), s.Resources...)
	return out
}

// ReleasePreferenceType tells the scheduler how to treat a released slot's machine
type ReleasePreferenceType string

const (
	ReleasePrefDefault ReleasePreferenceType = "RELEASE_PREF_DEFAULT"
	ReleasePrefEnable  ReleasePreferenceType = "RELEASE_PREF_ENABLE"
	ReleasePrefDisable ReleasePreferenceType = "RELEASE_PREF_DISABLE"
)

// ReleasePreference is attached to each released slot
type ReleasePreference struct {
	Type         ReleasePreferenceType `json:"type"`
	LeaseSeconds int32                 `json:"leaseSeconds,omitempty"`
}

// DefaultReleasePreference is used for orphan slots and plain releases
func DefaultReleasePreference() ReleasePreference {
	return ReleasePreference{Type: ReleasePrefDefault}
}
