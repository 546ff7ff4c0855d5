package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medminder"

const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultDegraded = "degraded"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Reminder commands by command and result.",
	}, []string{"command", "result"})

	gatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "calls_total",
		Help:      "Notification gateway calls by call and result.",
	}, []string{"call", "result"})

	breakerTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gateway",
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state changes by target state.",
	}, []string{"to"})

	dosesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adherence",
		Name:      "doses_recorded_total",
		Help:      "Confirmed doses recorded.",
	})

	confirmationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adherence",
		Name:      "confirmations_dropped_total",
		Help:      "Confirmations ignored, by reason.",
	}, []string{"reason"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "profilesync",
		Name:      "runs_total",
		Help:      "Profile sync runs by result.",
	}, []string{"result"})

	activeAlarms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_alarms",
		Help:      "Alarms currently switched on.",
	})
)

func ObserveCommand(command, result string) {
	commandsTotal.WithLabelValues(command, result).Inc()
}

func ObserveGatewayCall(call string, err error) {
	gatewayCallsTotal.WithLabelValues(call, resultOf(err)).Inc()
}

func ObserveBreakerTransition(to string) {
	breakerTransitionsTotal.WithLabelValues(to).Inc()
}

func ObserveDose() {
	dosesRecordedTotal.Inc()
}

func ObserveDroppedConfirmation(reason string) {
	confirmationsDroppedTotal.WithLabelValues(reason).Inc()
}

func ObserveSync(err error) {
	syncRunsTotal.WithLabelValues(resultOf(err)).Inc()
}

func SetActiveAlarms(n int) {
	activeAlarms.Set(float64(n))
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func resultOf(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
