// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package dispute

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts game activity. A nil *Metrics records nothing.
type Metrics struct {
	opened     prometheus.Counter
	challenges prometheus.Counter
	rounds     prometheus.Counter
	outcomes   *prometheus.CounterVec
	defaults   *prometheus.CounterVec
	depth      prometheus.Histogram
}

// NewMetrics registers the dispute metrics with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "claims_opened_total",
			Help: "Claims that entered the happy path.",
		}),
		challenges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "challenges_total",
			Help: "Claims challenged by a verifier.",
		}),
		rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "bisection_rounds_total",
			Help: "Completed bisection rounds.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "outcomes_total",
			Help: "Terminal outcomes by kind.",
		}, []string{"outcome"}),
		defaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "defaults_total",
			Help: "Defaults by defaulting party.",
		}, []string{"party"}),
		depth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bitvm", Subsystem: "dispute", Name: "rounds_per_dispute",
			Help:    "Bisection rounds a dispute took to terminate.",
			Buckets: prometheus.LinearBuckets(0, 2, 16),
		}),
	}
	var errs []error
	for _, c := range []prometheus.Collector{m.opened, m.challenges, m.rounds, m.outcomes, m.defaults, m.depth} {
		errs = append(errs, reg.Register(c))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observe(g *Game, ev *Event) {
	if m == nil || ev == nil {
		return
	}
	switch ev.Kind {
	case EventOpened:
		m.opened.Inc()
	case EventChallenge:
		m.challenges.Inc()
	case EventRespond:
		m.rounds.Inc()
	case EventResolved, EventDefault:
		m.outcomes.WithLabelValues(string(g.Claim.Outcome)).Inc()
		if ev.Kind == EventDefault {
			m.defaults.WithLabelValues(string(g.Resolution.Defaulter)).Inc()
		}
		if g.Session != nil {
			m.depth.Observe(float64(g.Session.Round))
		}
	}
}
