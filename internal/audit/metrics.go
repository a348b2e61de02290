package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var auditEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "soapbox",
	Subsystem: "audit",
	Name:      "events_total",
	Help:      "Audit events appended, by type.",
}, []string{"type"})
