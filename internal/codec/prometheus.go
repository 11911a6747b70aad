package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/go-tangra/go-tangra-condiag/internal/collector"
	"github.com/go-tangra/go-tangra-condiag/internal/vsphere"
)

const namespace = "condiag"

var (
	entityInfoDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "entity_info"),
		"Inventory entity seen by the run.",
		[]string{"entity", "kind", "name", "primary_address"}, nil,
	)
	cimInstancesDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "cim_instances"),
		"Number of CIM instances enumerated per class on a host.",
		[]string{"entity", "class"}, nil,
	)
	warningsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "warnings"),
		"Number of collection steps that failed during the run.",
		[]string{"run_id"}, nil,
	)
)

var sampleLabels = []string{"entity", "kind", "instance"}

// reportCollector exposes a finished report as const metrics.
type reportCollector struct {
	report *collector.Report
}

// Describe sends nothing. The collector is unchecked since its families
// depend on the counters present in the report.
func (c reportCollector) Describe(chan<- *prometheus.Desc) {}

func (c reportCollector) Collect(ch chan<- prometheus.Metric) {
	r := c.report
	ch <- prometheus.MustNewConstMetric(warningsDesc, prometheus.GaugeValue, float64(len(r.Warnings)), r.RunID)

	for _, h := range r.Hosts {
		ch <- prometheus.MustNewConstMetric(entityInfoDesc, prometheus.GaugeValue, 1,
			h.Entity.ID, string(h.Entity.Kind), h.Entity.Name, h.PrimaryAddress)
		for class, instances := range h.CIM {
			ch <- prometheus.MustNewConstMetric(cimInstancesDesc, prometheus.GaugeValue, float64(len(instances)), h.Entity.ID, class)
		}
		c.samples(ch, h.Entity, h.Metrics)
	}
	for _, vm := range r.VirtualMachines {
		primary, _ := vm.Addresses.First()
		ch <- prometheus.MustNewConstMetric(entityInfoDesc, prometheus.GaugeValue, 1,
			vm.Entity.ID, string(vm.Entity.Kind), vm.Entity.Name, primary)
		c.samples(ch, vm.Entity, vm.Metrics)
	}
}

func (c reportCollector) samples(ch chan<- prometheus.Metric, entity vsphere.EntityRef, samples []vsphere.MetricSample) {
	for _, s := range samples {
		desc := prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", metricName(s.Name)),
			fmt.Sprintf("vSphere performance counter %s.", s.Name),
			sampleLabels, nil,
		)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(s.Value),
			entity.ID, string(entity.Kind), s.Instance)
	}
}

// metricName maps a counter name such as cpu.usage.average onto the
// Prometheus name alphabet.
func metricName(counter string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, counter)
}

func encodePrometheus(w io.Writer, report *collector.Report) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(reportCollector{report: report}); err != nil {
		return fmt.Errorf("register report collector: %w", err)
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather report metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
