package vsphere

import (
	"context"

	"github.com/vmware/govmomi/vim25/types"
)

// CounterSource lists the performance counters known to the endpoint.
type CounterSource interface {
	CounterInfo(ctx context.Context) ([]types.PerfCounterInfo, error)
}

// Counter is the metadata of one performance counter.
type Counter struct {
	ID     int32  `json:"id" yaml:"id"`
	Group  string `json:"group" yaml:"group"`
	Name   string `json:"name" yaml:"name"`
	Rollup string `json:"rollup" yaml:"rollup"`
}

// HumanReadableName returns "<group>.<name>.<rollup>". Counters sharing a
// name but differing in rollup stay distinct.
func (c Counter) HumanReadableName() string {
	return c.Group + "." + c.Name + "." + c.Rollup
}

// Catalog is the counter table of a session, fetched once on first Load.
type Catalog struct {
	src  CounterSource
	byID map[int32]Counter
}

// NewCatalog returns an unloaded catalog.
func NewCatalog(src CounterSource) *Catalog {
	return &Catalog{src: src}
}

// Load fetches the counter table unless it is already loaded. A failed
// fetch leaves the catalog unloaded.
func (c *Catalog) Load(ctx context.Context) error {
	if c.byID != nil {
		return nil
	}

	infos, err := c.src.CounterInfo(ctx)
	if err != nil {
		return retrievalError("load performance counters", err)
	}

	byID := make(map[int32]Counter, len(infos))
	for _, info := range infos {
		byID[info.Key] = Counter{
			ID:     info.Key,
			Group:  descriptionKey(info.GroupInfo),
			Name:   descriptionKey(info.NameInfo),
			Rollup: string(info.RollupType),
		}
	}
	c.byID = byID
	return nil
}

// Loaded reports whether Load has succeeded.
func (c *Catalog) Loaded() bool {
	return c.byID != nil
}

// Lookup returns the counter with the given id.
func (c *Catalog) Lookup(id int32) (Counter, bool) {
	counter, ok := c.byID[id]
	return counter, ok
}

// Len returns the number of known counters.
func (c *Catalog) Len() int {
	return len(c.byID)
}

func descriptionKey(d types.BaseElementDescription) string {
	if d == nil {
		return ""
	}
	if ed := d.GetElementDescription(); ed != nil {
		return ed.Key
	}
	return ""
}
