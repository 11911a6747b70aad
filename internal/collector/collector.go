package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/go-tangra/go-tangra-condiag/internal/cim"
	"github.com/go-tangra/go-tangra-condiag/internal/vsphere"
)

// DefaultCIMClass is enumerated on every host when no classes are configured.
const DefaultCIMClass = "CIM_NumericSensor"

// Source is the part of a vSphere session a run reads from.
type Source interface {
	Host() string
	About() vsphere.AboutInfo
	MajorAPIVersion() int
	Search(ctx context.Context, kind vsphere.EntityKind) ([]vsphere.EntityRef, error)
	CandidateAddresses(ctx context.Context, host vsphere.EntityRef) (vsphere.AddressSet, error)
	PrimaryAddress(ctx context.Context, host vsphere.EntityRef, candidates vsphere.AddressSet) (string, bool)
	VMAddresses(ctx context.Context, vm vsphere.EntityRef) (vsphere.AddressSet, error)
	QueryObjects(ctx context.Context, host vsphere.EntityRef, className, ipOverride string) ([]cim.Instance, error)
	CollectMetrics(ctx context.Context, entity vsphere.EntityRef) ([]vsphere.MetricSample, error)
}

var _ Source = (*vsphere.Session)(nil)

// Options selects what a run gathers.
type Options struct {
	// CIMClasses are enumerated on every host. Empty means DefaultCIMClass.
	CIMClasses  []string
	SkipCIM     bool
	SkipMetrics bool

	Log logrus.FieldLogger
}

type run struct {
	src    Source
	opts   Options
	log    logrus.FieldLogger
	report *Report
	errs   []error
}

// Run gathers a report from src. It attempts every part and returns the
// partial report alongside the joined errors of the parts that failed.
func Run(ctx context.Context, src Source, opts Options) (*Report, error) {
	if len(opts.CIMClasses) == 0 {
		opts.CIMClasses = []string{DefaultCIMClass}
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	r := &run{
		src:  src,
		opts: opts,
		log:  log,
		report: &Report{
			RunID:           uuid.NewString(),
			CollectedAt:     time.Now().UTC(),
			Endpoint:        src.Host(),
			About:           src.About(),
			APIMajorVersion: src.MajorAPIVersion(),
			Hosts:           []HostReport{},
			VirtualMachines: []VMReport{},
		},
	}
	r.log = r.log.WithField("run", r.report.RunID)

	r.collectHosts(ctx)
	r.collectVirtualMachines(ctx)

	if len(r.errs) > 0 {
		return r.report, fmt.Errorf("collection errors: %w", errors.Join(r.errs...))
	}
	return r.report, nil
}

func (r *run) fail(entity string, err error) {
	r.errs = append(r.errs, err)
	r.report.Warnings = append(r.report.Warnings, err.Error())
	r.log.WithError(err).WithField("entity", entity).Warn("Collection step failed")
}

func (r *run) collectHosts(ctx context.Context) {
	hosts, err := r.src.Search(ctx, vsphere.KindHost)
	if err != nil {
		r.fail("hosts", err)
		return
	}

	for _, h := range hosts {
		hr := HostReport{Entity: h, Addresses: vsphere.AddressSet{}}

		addrs, err := r.src.CandidateAddresses(ctx, h)
		if err != nil {
			r.fail(h.ID, err)
		} else {
			hr.Addresses = addrs
			hr.PrimaryAddress, _ = r.src.PrimaryAddress(ctx, h, addrs)
		}

		if !r.opts.SkipCIM {
			hr.CIM = make(map[string][]cim.Instance, len(r.opts.CIMClasses))
			for _, class := range r.opts.CIMClasses {
				instances, err := r.src.QueryObjects(ctx, h, class, hr.PrimaryAddress)
				if err != nil {
					r.fail(h.ID, err)
					continue
				}
				hr.CIM[class] = instances
			}
		}

		if !r.opts.SkipMetrics {
			samples, err := r.src.CollectMetrics(ctx, h)
			if err != nil {
				r.fail(h.ID, err)
			} else {
				hr.Metrics = samples
			}
		}

		r.log.WithFields(logrus.Fields{
			"entity":  h.ID,
			"address": hr.PrimaryAddress,
			"metrics": len(hr.Metrics),
		}).Debug("Host collected")
		r.report.Hosts = append(r.report.Hosts, hr)
	}
}

func (r *run) collectVirtualMachines(ctx context.Context) {
	vms, err := r.src.Search(ctx, vsphere.KindVirtualMachine)
	if err != nil {
		r.fail("virtual machines", err)
		return
	}

	for _, vm := range vms {
		vr := VMReport{Entity: vm, Addresses: vsphere.AddressSet{}}

		addrs, err := r.src.VMAddresses(ctx, vm)
		if err != nil {
			r.fail(vm.ID, err)
		} else {
			vr.Addresses = addrs
		}

		if !r.opts.SkipMetrics {
			samples, err := r.src.CollectMetrics(ctx, vm)
			if err != nil {
				r.fail(vm.ID, err)
			} else {
				vr.Metrics = samples
			}
		}

		r.report.VirtualMachines = append(r.report.VirtualMachines, vr)
	}
}
