package collector

import (
	"time"

	"github.com/go-tangra/go-tangra-condiag/internal/cim"
	"github.com/go-tangra/go-tangra-condiag/internal/vsphere"
)

// Report holds everything gathered from one management endpoint in a run.
type Report struct {
	RunID           string            `json:"run_id" yaml:"run_id"`
	CollectedAt     time.Time         `json:"collected_at" yaml:"collected_at"`
	Endpoint        string            `json:"endpoint" yaml:"endpoint"`
	About           vsphere.AboutInfo `json:"about" yaml:"about"`
	APIMajorVersion int               `json:"api_major_version" yaml:"api_major_version"`
	Hosts           []HostReport      `json:"hosts" yaml:"hosts"`
	VirtualMachines []VMReport        `json:"virtual_machines" yaml:"virtual_machines"`
	Warnings        []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// HostReport holds addressing, CIM telemetry and metrics of a host system.
type HostReport struct {
	Entity         vsphere.EntityRef         `json:"entity" yaml:"entity"`
	Addresses      vsphere.AddressSet        `json:"addresses" yaml:"addresses"`
	PrimaryAddress string                    `json:"primary_address,omitempty" yaml:"primary_address,omitempty"`
	CIM            map[string][]cim.Instance `json:"cim,omitempty" yaml:"cim,omitempty"`
	Metrics        []vsphere.MetricSample    `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// VMReport holds addressing and metrics of a virtual machine.
type VMReport struct {
	Entity    vsphere.EntityRef      `json:"entity" yaml:"entity"`
	Addresses vsphere.AddressSet     `json:"addresses" yaml:"addresses"`
	Metrics   []vsphere.MetricSample `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}
