package observability

import (
	"context"

	"github.com/aretw0/gamestate/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the executor collectors.
type Metrics struct {
	stages        *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	transactions  *prometheus.CounterVec
	txDuration    *prometheus.HistogramVec
	recoveries    *prometheus.CounterVec
	historySteps  *prometheus.CounterVec
	queueDepth    *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		stages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamestate_stage_runs_total",
				Help: "Total number of stage invocations",
			},
			[]string{"machine", "state", "stage"},
		),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamestate_stage_failures_total",
				Help: "Total number of stages that did not complete",
			},
			[]string{"machine", "state", "stage"},
		),
		transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamestate_transactions_total",
				Help: "Total number of closed transactions",
			},
			[]string{"machine", "kind", "outcome"},
		),
		txDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gamestate_transaction_duration_seconds",
				Help:    "Time between opening and closing a transaction",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"machine", "kind"},
		),
		recoveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamestate_recoveries_total",
				Help: "Power-hit recovery transitions",
			},
			[]string{"machine", "phase"},
		),
		historySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gamestate_history_steps_total",
				Help: "History steps appended to the HistoryList",
			},
			[]string{"machine", "state"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gamestate_queue_depth",
				Help: "Transaction requests waiting for the executor",
			},
			[]string{"machine"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.stages, m.stageFailures, m.transactions, m.txDuration,
		m.recoveries, m.historySteps, m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveQueue records the current queue depth of a machine.
func (m *Metrics) ObserveQueue(machine string, depth int) {
	m.queueDepth.WithLabelValues(machine).Set(float64(depth))
}

// Hooks returns lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(_ context.Context, e *domain.StageEvent) {
			m.stages.WithLabelValues(e.Machine, e.State, string(e.Stage)).Inc()
		},
		OnStageLeave: func(_ context.Context, e *domain.StageEvent) {
			if e.Err != nil {
				m.stageFailures.WithLabelValues(e.Machine, e.State, string(e.Stage)).Inc()
			}
		},
		OnTransaction: func(_ context.Context, e *domain.TransactionEvent) {
			kind := "stage"
			if e.Queued {
				kind = "queued"
			}
			outcome := "rolled_back"
			if e.Committed {
				outcome = "committed"
			}
			m.transactions.WithLabelValues(e.Machine, kind, outcome).Inc()
			m.txDuration.WithLabelValues(e.Machine, kind).Observe(e.Duration.Seconds())
		},
		OnRecovery: func(_ context.Context, e *domain.RecoveryEvent) {
			phase := "exited"
			if e.Entered {
				phase = "entered"
			}
			m.recoveries.WithLabelValues(e.Machine, phase).Inc()
		},
		OnHistoryWritten: func(_ context.Context, e *domain.HistoryEvent) {
			m.historySteps.WithLabelValues(e.Machine, e.State).Inc()
		},
	}
}
