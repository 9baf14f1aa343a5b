package metrics

import (
	"context"
	"time"
)

// InstanceLister is the minimal read surface the collector needs from the
// Persistence Store; cmd/dbaasd adapts pkg/storage.Store to it.
type InstanceLister interface {
	ListInstances(ctx context.Context) ([]InstanceCount, error)
}

// InstanceCount is the tuple the collector needs per instance row; kept
// minimal so this package does not import pkg/types and pkg/storage,
// which would otherwise create an import cycle with pkg/storage's own
// use of pkg/metrics for timing its queries.
type InstanceCount struct {
	Engine string
	Status string
}

// Collector periodically refreshes the dbaas_instances_total gauge from
// the Persistence Store, independent of the Health Monitor / Metrics
// Sampler tick that refreshes per-instance resource samples.
type Collector struct {
	store  InstanceLister
	stopCh chan struct{}
}

// NewCollector creates a new instance-count collector.
func NewCollector(store InstanceLister) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting on a 15s tick.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	rows, err := c.store.ListInstances(context.Background())
	if err != nil {
		return
	}

	counts := make(map[[2]string]int)
	for _, r := range rows {
		counts[[2]string{r.Engine, r.Status}]++
	}
	for key, n := range counts {
		InstancesTotal.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}
