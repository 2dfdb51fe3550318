package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	KeysCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywarden",
		Name:      "keys_created_total",
		Help:      "Total number of license keys minted.",
	})
	Redemptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keywarden",
		Name:      "redemptions_total",
		Help:      "Total number of key redemption attempts by result.",
	}, []string{"result"})
	Verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "keywarden",
		Name:      "verifications_total",
		Help:      "Total number of hwid verification calls by outcome.",
	}, []string{"outcome"})
	HwidResets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywarden",
		Name:      "hwid_resets_total",
		Help:      "Total number of successful hwid resets.",
	})
	Blacklists = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "keywarden",
		Name:      "blacklists_total",
		Help:      "Total number of keys blacklisted.",
	})
)

func init() {
	prometheus.MustRegister(KeysCreated, Redemptions, Verifications, HwidResets, Blacklists)
}
