package tuner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	catalogChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_tuner_catalog_channels",
		Help: "Channels in the current catalog that probed successfully.",
	})
	catalogFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_tuner_catalog_failures",
		Help: "Channels in the current catalog whose probe failed.",
	})
	guideMatched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_tuner_guide_matched_channels",
		Help: "Channels in the last generated guide matched from an external feed.",
	})
	guideSynthetic = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_tuner_guide_synthetic_channels",
		Help: "Channels in the last generated guide filled with synthetic programmes.",
	})
	streamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "iptv_tuner_streams_active",
		Help: "Live streaming sessions currently being served.",
	})
	streamsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iptv_tuner_streams_total",
		Help: "Live streaming sessions started since process start.",
	})
)

func setCatalogMetrics(ok, failed int) {
	catalogChannels.Set(float64(ok))
	catalogFailures.Set(float64(failed))
}

func setGuideMetrics(matched, synthetic int) {
	guideMatched.Set(float64(matched))
	guideSynthetic.Set(float64(synthetic))
}
