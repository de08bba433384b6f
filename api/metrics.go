package api

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fulldump/itempicker/service"
)

// RegisterStoreMetrics exposes the item counters as gauges evaluated on every
// scrape.
func RegisterStoreMetrics(reg prometheus.Registerer, s service.Servicer) error {

	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "itempicker",
			Subsystem: "store",
			Name:      "items",
			Help:      "Items in the master collection.",
		}, func() float64 {
			return float64(s.Stats().Items.Total)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "itempicker",
			Subsystem: "store",
			Name:      "selected",
			Help:      "Items currently selected.",
		}, func() float64 {
			return float64(s.Stats().Items.Selected)
		}),
	}

	for _, g := range gauges {
		err := reg.Register(g)
		if err != nil {
			return err
		}
	}

	return nil
}
