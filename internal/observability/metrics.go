package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	enrollmentsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "library",
		Subsystem: "enrollment",
		Name:      "accepted_total",
		Help:      "Enrollments admitted by the admission controller.",
	})
	enrollmentsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "library",
		Subsystem: "enrollment",
		Name:      "rejected_total",
		Help:      "Enrollments rejected, labelled by reason.",
	}, []string{"reason"})
	admissionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "library",
		Subsystem: "enrollment",
		Name:      "admission_retries_total",
		Help:      "Admission transactions retried after a serialization conflict.",
	})
)

func init() {
	prometheus.MustRegister(enrollmentsAccepted, enrollmentsRejected, admissionRetries)
}

// RecordAdmissionAccepted counts a successful enrollment.
func RecordAdmissionAccepted() {
	enrollmentsAccepted.Inc()
}

// RecordAdmissionRejected counts a business-rule rejection.
// Reason is one of "duplicate", "capacity".
func RecordAdmissionRejected(reason string) {
	enrollmentsRejected.WithLabelValues(reason).Inc()
}

// RecordAdmissionRetry counts a transparent retry after contention.
func RecordAdmissionRetry() {
	admissionRetries.Inc()
}
