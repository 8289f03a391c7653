package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_exchange_transitions_total",
		Help: "Exchange status transitions applied, labelled by target status.",
	}, []string{"status"})

	uploadsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skillswap_artifact_uploads_total",
		Help: "Artifact uploads persisted.",
	})

	messagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "skillswap_messages_persisted_total",
		Help: "Chat messages durably stored.",
	})
)
