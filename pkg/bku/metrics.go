/*
 * Nuts mobile signer
 * Copyright (C) 2020. Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package bku

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess   = "success"
	outcomeCancelled = "cancelled"
	outcomeExhausted = "exhausted"
	outcomeFailed    = "failed"
)

const (
	stepSLRequest    = "sl_request"
	stepCredentials  = "credentials"
	stepSMS          = "sms"
	stepTAN          = "tan"
	stepFIDO2Options = "fido2_options"
	stepFIDO2Result  = "fido2_result"
	stepPoll         = "poll"
	stepResult       = "result"
)

// Metrics counts signing runs and the requests they make.
type Metrics struct {
	runs          *prometheus.CounterVec
	roundTrips    *prometheus.CounterVec
	restarts      prometheus.Counter
	degradedFIDO2 prometheus.Counter
}

// NewMetrics registers the metrics with reg, the default registerer when nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilebku_signing_runs_total",
			Help: "Number of finished signing runs by outcome",
		}, []string{"outcome"}),
		roundTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mobilebku_round_trips_total",
			Help: "Number of requests sent to the signing authority by protocol step",
		}, []string{"step"}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mobilebku_round_restarts_total",
			Help: "Number of credential rounds restarted on request of the signing authority",
		}),
		degradedFIDO2: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mobilebku_fido2_degraded_total",
			Help: "Number of FIDO2 assertions that failed and fell back to TAN entry",
		}),
	}
	reg.MustRegister(m.runs, m.roundTrips, m.restarts, m.degradedFIDO2)
	return m
}

func (m *Metrics) incRun(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) incRoundTrip(step string) {
	if m == nil {
		return
	}
	m.roundTrips.WithLabelValues(step).Inc()
}

func (m *Metrics) incRestart() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) incDegraded() {
	if m == nil {
		return
	}
	m.degradedFIDO2.Inc()
}
