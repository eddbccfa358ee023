package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_decisions_total",
		Help: "Interception decisions by outcome.",
	}, []string{"outcome"})

	oauthCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_completions_total",
		Help: "OAuth completion flow results.",
	}, []string{"result"})
)
