package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "biometrics_challenges_issued_total",
		Help: "Challenges issued by action.",
	}, []string{"action"})

	lockoutRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biometrics_lockout_rejections_total",
		Help: "Requests refused because the identity is locked out.",
	})

	verifyScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "biometrics_verify_score",
		Help:    "Best similarity score of verification attempts.",
		Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.92, 0.95, 0.98, 1},
	})

	templateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "biometrics_template_conflicts_total",
		Help: "Template writes lost to a concurrent update.",
	})
)
