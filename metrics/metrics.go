package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion cycles by outcome
	CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bolsa_ingest_cycles_total",
		Help: "Ingestion cycles by resulting status",
	}, []string{"status"})

	RowsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bolsa_ingest_rows_inserted_total",
		Help: "Snapshot rows inserted by ingestion cycles",
	})

	RowsPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bolsa_ingest_rows_pruned_total",
		Help: "Snapshot rows deleted by retention pruning",
	})

	RecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bolsa_ingest_records_skipped_total",
		Help: "Upstream records dropped because they could not be parsed",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bolsa_ingest_cycle_duration_seconds",
		Help:    "Time taken by a complete ingestion cycle",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// Query latency
	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bolsa_query_duration_seconds",
		Help:    "Time taken to answer snapshot queries",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bolsa_ws_clients",
		Help: "Connected websocket clients",
	})
)
