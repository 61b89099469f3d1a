// Package metrics содержит счётчики Prometheus для операций сервиса банка крови.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DonationsRecorded считает успешно записанные донации.
	DonationsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_donations_recorded_total",
		Help: "Number of donations recorded.",
	})

	// RequestsSubmitted считает поданные заявки на кровь.
	RequestsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_requests_submitted_total",
		Help: "Number of blood requests submitted.",
	})

	// RequestsResolved считает решённые заявки по исходу (approved или rejected).
	RequestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bloodbank_requests_resolved_total",
		Help: "Number of blood requests resolved by outcome.",
	}, []string{"outcome"})

	// InventoryRefusals считает отказы из-за нехватки единиц крови.
	InventoryRefusals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bloodbank_inventory_refusals_total",
		Help: "Number of operations refused due to insufficient inventory.",
	})
)
