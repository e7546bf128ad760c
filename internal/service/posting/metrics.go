package posting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	entriesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "entries_posted_total",
		Help:      "Total number of journal entries posted",
	})
	entriesReversed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "entries_reversed_total",
		Help:      "Total number of journal entries reversed",
	})
	entriesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "entries_rejected_total",
		Help:      "Total number of journal entries rejected during approval",
	})
)
