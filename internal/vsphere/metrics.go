package vsphere

import (
	"context"
	"fmt"
	"sort"

	"github.com/vmware/govmomi/vim25/types"
)

// PerfQuerier is the subset of the performance manager used for sampling.
type PerfQuerier interface {
	ProviderSummary(ctx context.Context, entity types.ManagedObjectReference) (*types.PerfProviderSummary, error)
	Query(ctx context.Context, spec []types.PerfQuerySpec) ([]types.BasePerfEntityMetricBase, error)
}

// MetricSample is one decoded performance value.
type MetricSample struct {
	Name     string `json:"name" yaml:"name"`
	Instance string `json:"instance,omitempty" yaml:"instance,omitempty"`
	Value    int64  `json:"value" yaml:"value"`
}

// Key is the counter name, qualified by the instance when there is one.
func (m MetricSample) Key() string {
	if m.Instance == "" {
		return m.Name
	}
	return m.Name + "[" + m.Instance + "]"
}

// MetricsCollector takes single performance samples of an entity.
type MetricsCollector struct {
	perf    PerfQuerier
	catalog *Catalog
}

// NewMetricsCollector decodes samples from perf with the counter names of
// catalog.
func NewMetricsCollector(perf PerfQuerier, catalog *Catalog) *MetricsCollector {
	return &MetricsCollector{perf: perf, catalog: catalog}
}

// Metrics returns a collector bound to the session's catalog.
func (s *Session) Metrics() *MetricsCollector {
	if !s.Connected() {
		return nil
	}
	return NewMetricsCollector(s.perf, s.Catalog)
}

// CollectMetrics takes one sample of entity with the session's catalog.
func (s *Session) CollectMetrics(ctx context.Context, entity EntityRef) ([]MetricSample, error) {
	return s.Metrics().Collect(ctx, entity)
}

// Collect queries one sample at the entity's refresh interval. Only integer
// series with exactly one value and a known counter are returned; other
// series are skipped.
func (m *MetricsCollector) Collect(ctx context.Context, entity EntityRef) ([]MetricSample, error) {
	op := fmt.Sprintf("collect metrics %s", entity.ID)
	if m == nil {
		return nil, retrievalError(op, errNotConnected)
	}

	if err := m.catalog.Load(ctx); err != nil {
		return nil, err
	}

	summary, err := m.perf.ProviderSummary(ctx, entity.Reference())
	if err != nil {
		return nil, retrievalError(op, err)
	}

	spec := types.PerfQuerySpec{
		Entity:    entity.Reference(),
		MaxSample: 1,
	}
	if summary != nil && summary.RefreshRate > 0 {
		spec.IntervalId = summary.RefreshRate
	}

	result, err := m.perf.Query(ctx, []types.PerfQuerySpec{spec})
	if err != nil {
		return nil, retrievalError(op, err)
	}

	return decodeSamples(result, m.catalog), nil
}

func decodeSamples(result []types.BasePerfEntityMetricBase, catalog *Catalog) []MetricSample {
	samples := []MetricSample{}
	for _, base := range result {
		em, ok := base.(*types.PerfEntityMetric)
		if !ok {
			continue
		}
		for _, series := range em.Value {
			is, ok := series.(*types.PerfMetricIntSeries)
			if !ok || len(is.Value) != 1 {
				continue
			}
			counter, ok := catalog.Lookup(is.Id.CounterId)
			if !ok {
				continue
			}
			samples = append(samples, MetricSample{
				Name:     counter.HumanReadableName(),
				Instance: is.Id.Instance,
				Value:    is.Value[0],
			})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].Key() < samples[j].Key()
	})
	return samples
}
