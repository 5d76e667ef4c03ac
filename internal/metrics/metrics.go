// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	PassesTotal      = expvar.NewInt("passes_total")
	ItemsAdmitted    = expvar.NewInt("items_admitted")
	ItemsBlocked     = expvar.NewInt("items_blocked")
	BuildsStarted    = expvar.NewInt("builds_started")
	ItemsStuck       = expvar.NewInt("items_stuck")
	AlertsDispatched = expvar.NewInt("alerts_dispatched")
	AlertsFailed     = expvar.NewInt("alerts_failed")
)
