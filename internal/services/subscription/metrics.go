package subscription

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// transitionsTotal считает переходы жизненного цикла подписки.
var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_subscription_transitions_total",
		Help: "Number of subscription lifecycle transitions by kind.",
	},
	[]string{"transition"},
)

const (
	transitionTrialStarted      = "trial_started"
	transitionStartedActive     = "started_active"
	transitionTrialResumed      = "trial_resumed"
	transitionPromoted          = "promoted"
	transitionCancelled         = "cancelled"
	transitionCancelledProvider = "cancelled_by_provider"
)
