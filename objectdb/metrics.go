package objectdb

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors of one store handle.
type Metrics struct {
	ObjectsAdded   prometheus.Counter
	ObjectsUpdated prometheus.Counter
	ObjectsDeleted prometheus.Counter
	TableRebuilds  prometheus.Counter
	Queries        *prometheus.CounterVec
	SearchPasses   prometheus.Histogram
	QueryDuration  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ObjectsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "objectdb",
			Name:      "objects_added_total",
			Help:      "Total number of objects added",
		}),
		ObjectsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "objectdb",
			Name:      "objects_updated_total",
			Help:      "Total number of objects updated",
		}),
		ObjectsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "objectdb",
			Name:      "objects_deleted_total",
			Help:      "Total number of objects deleted, cascades included",
		}),
		TableRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "objectdb",
			Name:      "table_rebuilds_total",
			Help:      "Total number of object table rebuilds caused by schema changes",
		}),
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "objectdb",
				Name:      "queries_total",
				Help:      "Total number of queries",
			},
			[]string{"kind"}, // "relational" / "ranked"
		),
		SearchPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "objectdb",
			Name:      "search_passes",
			Help:      "Rank sweeps needed per inverted index search",
			Buckets:   []float64{1, 2, 3, 4, 6, 8},
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "objectdb",
			Name:      "query_duration_seconds",
			Help:      "Query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		m.ObjectsAdded, m.ObjectsUpdated, m.ObjectsDeleted, m.TableRebuilds,
		m.Queries, m.SearchPasses, m.QueryDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
