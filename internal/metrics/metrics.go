// Package metrics registers the driver's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Commands    *prometheus.CounterVec
	Retries     prometheus.Counter
	Disconnects prometheus.Counter
	Tasks       *prometheus.CounterVec
}

// New registers the collectors against reg, defaulting to the global
// registry when reg is nil. Collectors that are already registered are
// reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staradventurer_commands_total",
		Help: "Motor controller commands, labeled by command and result (ok, error).",
	}, []string{"command", "result"}))
	if err != nil {
		return nil, err
	}
	retries, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "staradventurer_command_retries_total",
		Help: "Motor controller command attempts that failed with a communication error and were retried.",
	}))
	if err != nil {
		return nil, err
	}
	disconnects, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "staradventurer_disconnects_total",
		Help: "Connections torn down because of a hardware failure.",
	}))
	if err != nil {
		return nil, err
	}
	tasks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "staradventurer_task_total",
		Help: "Finished long-running mount tasks, labeled by task (slew, park, guide) and outcome (complete, abort, error).",
	}, []string{"task", "outcome"}))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		Commands:    commands,
		Retries:     retries,
		Disconnects: disconnects,
		Tasks:       tasks,
	}, nil
}

func (m *Metrics) ObserveCommand(command string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Commands.WithLabelValues(command, result).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

func (m *Metrics) ObserveDisconnect() {
	if m == nil {
		return
	}
	m.Disconnects.Inc()
}

func (m *Metrics) ObserveTask(task, outcome string) {
	if m == nil {
		return
	}
	m.Tasks.WithLabelValues(task, outcome).Inc()
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}
