package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/simulator"
	"github.com/vmware/govmomi/vim25"

	"github.com/go-tangra/go-tangra-condiag/internal/cim"
	"github.com/go-tangra/go-tangra-condiag/internal/vsphere"
)

type fakeSource struct {
	hosts     []vsphere.EntityRef
	vms       []vsphere.EntityRef
	searchErr map[vsphere.EntityKind]error
	addrs     map[string]vsphere.AddressSet
	addrErr   map[string]error
	cim       map[string][]cim.Instance
	cimErr    map[string]error
	metrics   map[string][]vsphere.MetricSample
	metricErr map[string]error

	queried    []string
	overrides  []string
	metricRuns int
}

func (f *fakeSource) Host() string { return "vc01.example.com" }

func (f *fakeSource) About() vsphere.AboutInfo {
	return vsphere.AboutInfo{APIType: "VirtualCenter", APIVersion: "8.0.3.0"}
}

func (f *fakeSource) MajorAPIVersion() int { return 8 }

func (f *fakeSource) Search(_ context.Context, kind vsphere.EntityKind) ([]vsphere.EntityRef, error) {
	if err := f.searchErr[kind]; err != nil {
		return nil, err
	}
	if kind == vsphere.KindHost {
		return f.hosts, nil
	}
	return f.vms, nil
}

func (f *fakeSource) CandidateAddresses(_ context.Context, host vsphere.EntityRef) (vsphere.AddressSet, error) {
	if err := f.addrErr[host.ID]; err != nil {
		return nil, err
	}
	return f.addrs[host.ID], nil
}

func (f *fakeSource) PrimaryAddress(_ context.Context, _ vsphere.EntityRef, candidates vsphere.AddressSet) (string, bool) {
	return candidates.First()
}

func (f *fakeSource) VMAddresses(_ context.Context, vm vsphere.EntityRef) (vsphere.AddressSet, error) {
	if err := f.addrErr[vm.ID]; err != nil {
		return nil, err
	}
	return f.addrs[vm.ID], nil
}

func (f *fakeSource) QueryObjects(_ context.Context, host vsphere.EntityRef, className, ipOverride string) ([]cim.Instance, error) {
	f.queried = append(f.queried, host.ID+"/"+className)
	f.overrides = append(f.overrides, ipOverride)
	if err := f.cimErr[host.ID]; err != nil {
		return nil, err
	}
	return f.cim[host.ID+"/"+className], nil
}

func (f *fakeSource) CollectMetrics(_ context.Context, entity vsphere.EntityRef) ([]vsphere.MetricSample, error) {
	f.metricRuns++
	if err := f.metricErr[entity.ID]; err != nil {
		return nil, err
	}
	return f.metrics[entity.ID], nil
}

var (
	host1 = vsphere.EntityRef{Kind: vsphere.KindHost, ID: "host-21", Name: "esx01"}
	host2 = vsphere.EntityRef{Kind: vsphere.KindHost, ID: "host-42", Name: "esx02"}
	vm1   = vsphere.EntityRef{Kind: vsphere.KindVirtualMachine, ID: "vm-7", Name: "db01"}
)

func newFakeSource() *fakeSource {
	return &fakeSource{
		hosts: []vsphere.EntityRef{host1, host2},
		vms:   []vsphere.EntityRef{vm1},
		addrs: map[string]vsphere.AddressSet{
			host1.ID: vsphere.NewAddressSet("10.0.0.5", "10.0.0.10"),
			host2.ID: vsphere.NewAddressSet("10.0.1.5"),
			vm1.ID:   vsphere.NewAddressSet("10.2.0.4"),
		},
		cim: map[string][]cim.Instance{
			host1.ID + "/" + DefaultCIMClass: {{ClassName: "OMC_NumericSensor"}},
		},
		metrics: map[string][]vsphere.MetricSample{
			host1.ID: {{Name: "cpu.usage.average", Value: 412}},
			vm1.ID:   {{Name: "mem.usage.average", Value: 3310}},
		},
	}
}

func TestRun(t *testing.T) {
	src := newFakeSource()
	log, _ := logtest.NewNullLogger()

	report, err := Run(context.Background(), src, Options{Log: log})
	require.NoError(t, err)

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "vc01.example.com", report.Endpoint)
	assert.Equal(t, 8, report.APIMajorVersion)
	assert.Empty(t, report.Warnings)

	require.Len(t, report.Hosts, 2)
	h := report.Hosts[0]
	assert.Equal(t, host1, h.Entity)
	assert.Equal(t, "10.0.0.10", h.PrimaryAddress)
	assert.Len(t, h.CIM[DefaultCIMClass], 1)
	assert.Equal(t, []vsphere.MetricSample{{Name: "cpu.usage.average", Value: 412}}, h.Metrics)

	require.Len(t, report.VirtualMachines, 1)
	assert.Equal(t, vsphere.AddressSet{"10.2.0.4"}, report.VirtualMachines[0].Addresses)

	assert.Equal(t, []string{"host-21/" + DefaultCIMClass, "host-42/" + DefaultCIMClass}, src.queried)
	assert.Equal(t, []string{"10.0.0.10", "10.0.1.5"}, src.overrides)
}

func TestRunCIMClasses(t *testing.T) {
	src := newFakeSource()
	src.hosts = []vsphere.EntityRef{host1}

	report, err := Run(context.Background(), src, Options{CIMClasses: []string{"CIM_Fan", "CIM_PowerSupply"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"host-21/CIM_Fan", "host-21/CIM_PowerSupply"}, src.queried)
	assert.Len(t, report.Hosts[0].CIM, 2)
}

func TestRunPartialFailure(t *testing.T) {
	src := newFakeSource()
	addrErr := &vsphere.RetrievalError{Op: "network info host-42", Err: errors.New("no permission")}
	cimErr := &vsphere.RetrievalError{Op: "acquire cim ticket host-21", Err: errors.New("session expired")}
	src.addrErr = map[string]error{host2.ID: addrErr}
	src.cimErr = map[string]error{host1.ID: cimErr}
	log, hook := logtest.NewNullLogger()

	report, err := Run(context.Background(), src, Options{Log: log})
	require.Error(t, err)
	require.NotNil(t, report)

	assert.ErrorIs(t, err, addrErr)
	assert.ErrorIs(t, err, cimErr)
	var re *vsphere.RetrievalError
	assert.ErrorAs(t, err, &re)

	require.Len(t, report.Hosts, 2)
	assert.Empty(t, report.Hosts[1].Addresses)
	assert.Empty(t, report.Hosts[1].PrimaryAddress)
	assert.NotContains(t, report.Hosts[0].CIM, DefaultCIMClass)
	assert.Len(t, report.Hosts[0].Metrics, 1)
	assert.Len(t, report.VirtualMachines, 1)

	assert.Len(t, report.Warnings, 2)
	assert.NotEmpty(t, hook.AllEntries())
}

func TestRunSearchFailureSkipsSection(t *testing.T) {
	src := newFakeSource()
	searchErr := errors.New("view unavailable")
	src.searchErr = map[vsphere.EntityKind]error{vsphere.KindHost: searchErr}

	report, err := Run(context.Background(), src, Options{})
	assert.ErrorIs(t, err, searchErr)

	assert.NotNil(t, report.Hosts)
	assert.Empty(t, report.Hosts)
	assert.Len(t, report.VirtualMachines, 1)
	assert.Empty(t, src.queried)
}

func TestRunSkips(t *testing.T) {
	src := newFakeSource()

	report, err := Run(context.Background(), src, Options{SkipCIM: true, SkipMetrics: true})
	require.NoError(t, err)

	assert.Empty(t, src.queried)
	assert.Zero(t, src.metricRuns)
	assert.Nil(t, report.Hosts[0].CIM)
	assert.Nil(t, report.Hosts[0].Metrics)
}

func TestRunAgainstSimulator(t *testing.T) {
	simulator.Test(func(ctx context.Context, c *vim25.Client) {
		m := vsphere.NewManager(nil)
		m.RelaxTrust()

		sess, err := m.Connect(ctx, c.URL().Host, "user", "pass")
		require.NoError(t, err)
		defer sess.Disconnect(ctx)

		report, err := Run(ctx, sess, Options{SkipCIM: true, SkipMetrics: true})
		require.NoError(t, err)

		assert.Equal(t, c.URL().Host, report.Endpoint)
		assert.NotEmpty(t, report.About.APIVersion)
		assert.NotEmpty(t, report.Hosts)
		assert.NotEmpty(t, report.VirtualMachines)
	})
}
