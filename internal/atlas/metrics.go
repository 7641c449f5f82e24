package atlas

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	attachmentLabel = "attachment"
	resultLabel     = "result"
)

const (
	resultLoaded  = "loaded"
	resultMissing = "missing"
	resultFailed  = "failed"
)

var (
	atlasLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_atlas_loads_total",
		Help: "Completed node loads by result.",
	}, []string{attachmentLabel, resultLabel})

	atlasEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrain_atlas_evictions_total",
		Help: "Evictable slots reassigned to another node.",
	}, []string{attachmentLabel})

	atlasPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terrain_atlas_pending",
		Help: "Requests deferred because every slot is desired.",
	}, []string{attachmentLabel})

	atlasOccupied = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "terrain_atlas_occupied_slots",
		Help: "Slots holding or loading a node.",
	}, []string{attachmentLabel})
)

func instrumentLoad(attachment, result string) {
	atlasLoads.
		With(prometheus.Labels{attachmentLabel: attachment, resultLabel: result}).
		Inc()
}

func instrumentEviction(attachment string) {
	atlasEvictions.
		With(prometheus.Labels{attachmentLabel: attachment}).
		Inc()
}

func instrumentPending(attachment string, delta int) {
	atlasPending.
		With(prometheus.Labels{attachmentLabel: attachment}).
		Add(float64(delta))
}

func instrumentOccupied(attachment string, delta int) {
	atlasOccupied.
		With(prometheus.Labels{attachmentLabel: attachment}).
		Add(float64(delta))
}
