package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	otpIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_challenges_issued_total",
			Help: "OTP challenges issued, by flow.",
		},
		[]string{"flow"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts, by flow and result.",
		},
		[]string{"flow", "result"},
	)

	sessionsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_issued_total",
			Help: "Session tokens issued, by login method.",
		},
		[]string{"method"},
	)

	registerOnce sync.Once
)

// Init registers the collectors in the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration, otpIssued, otpVerifications, sessionsIssued)
	})
}

// Handler serves the Prometheus exposition format on Fiber.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Middleware records request counts, latencies and in-flight requests. The
// route template is used as a label to keep cardinality bounded.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		labels := []string{c.Method(), route, strconv.Itoa(status)}
		httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(labels...).Inc()
		return err
	}
}

// OTPIssued counts a challenge issued for the given flow (signup, signin).
func OTPIssued(flow string) {
	otpIssued.WithLabelValues(flow).Inc()
}

// OTPVerified counts a verification attempt.
func OTPVerified(flow, result string) {
	otpVerifications.WithLabelValues(flow, result).Inc()
}

// SessionIssued counts a session minted via the given method (otp, google).
func SessionIssued(method string) {
	sessionsIssued.WithLabelValues(method).Inc()
}
