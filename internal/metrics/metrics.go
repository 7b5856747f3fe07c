package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	runsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ga_runs_submitted_total",
		Help: "Optimization runs accepted by the API",
	}, []string{"objective"})

	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ga_runs_finished_total",
		Help: "Optimization runs finished by the worker",
	}, []string{"objective", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ga_run_duration_seconds",
		Help:    "Wall time of a single optimization run",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"objective"})

	generationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ga_generations_total",
		Help: "Generations evaluated across all runs",
	}, []string{"objective"})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ga_runs_in_flight",
		Help: "Optimization runs currently executing in this process",
	})
)

func RunSubmitted(objective string) {
	runsSubmitted.WithLabelValues(objective).Inc()
}

// RunStarted 返回在任务结束时调用的函数
func RunStarted(objective string) func(status string) {
	start := time.Now()
	runsInFlight.Inc()

	return func(status string) {
		runsInFlight.Dec()
		runsFinished.WithLabelValues(objective, status).Inc()
		runDuration.WithLabelValues(objective).Observe(time.Since(start).Seconds())
	}
}

func GenerationDone(objective string) {
	generationsTotal.WithLabelValues(objective).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
