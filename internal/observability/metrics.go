package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	httpInFlightGauge       prometheus.Gauge
	idempotencyCounter      *prometheus.CounterVec
	policyOutcomeCounter    *prometheus.CounterVec
	resolveDurationHist     *prometheus.HistogramVec
	cashbackGrantedCounter  *prometheus.CounterVec
	usageConflictCounter    *prometheus.CounterVec
	grantContentionCounter  *prometheus.CounterVec
	capBreachCounter        *prometheus.CounterVec
	snapshotRulesGauge      *prometheus.GaugeVec
	snapshotLoadedTimestamp prometheus.Gauge
	workerRunCounter        *prometheus.CounterVec
	usageRecordFailures     prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"})

		httpInFlightGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served",
		})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		policyOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "policy_outcomes_total",
			Help: "Policy sub-resolution outcomes by component and error code",
		}, []string{"component", "code"})

		resolveDurationHist = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "policy_resolution_duration_seconds",
			Help:    "Policy evaluation latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"mode"})

		cashbackGrantedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_cashback_granted_micros_total",
			Help: "Cashback granted against campaign caps, in micros",
		}, []string{"currency"})

		usageConflictCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_usage_cas_conflicts_total",
			Help: "Lost compare-and-swap attempts on campaign usage counters",
		}, []string{"campaign_id"})

		grantContentionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_grant_contention_total",
			Help: "Grants deferred after exhausting retries",
		}, []string{"campaign_id"})

		capBreachCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_cap_breach_total",
			Help: "Number of times a campaign usage total exceeded its cap",
		}, []string{"campaign_id"})

		snapshotRulesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "policy_snapshot_rules",
			Help: "Rules held by the active policy snapshot",
		}, []string{"kind"})

		snapshotLoadedTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "policy_snapshot_loaded_timestamp_seconds",
			Help: "Unix time the active policy snapshot was built",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		usageRecordFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaign_usage_record_failures_total",
			Help: "Granted usage that could not be written through to durable storage",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			httpInFlightGauge,
			idempotencyCounter,
			policyOutcomeCounter,
			resolveDurationHist,
			cashbackGrantedCounter,
			usageConflictCounter,
			grantContentionCounter,
			capBreachCounter,
			snapshotRulesGauge,
			snapshotLoadedTimestamp,
			workerRunCounter,
			usageRecordFailures,
		)
	})
}

// ObserveHTTP records a served request under its route pattern.
func ObserveHTTP(method, route string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge and returns its decrement.
func TrackInFlight() func() {
	if httpInFlightGauge == nil {
		return func() {}
	}
	httpInFlightGauge.Inc()
	return httpInFlightGauge.Dec
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

// IncrementPolicyOutcome records one sub-resolution; code is "ok" on success.
func IncrementPolicyOutcome(component, code string) {
	if policyOutcomeCounter == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	policyOutcomeCounter.WithLabelValues(component, code).Inc()
}

func ObserveResolution(mode string, duration time.Duration) {
	if resolveDurationHist == nil {
		return
	}
	resolveDurationHist.WithLabelValues(mode).Observe(duration.Seconds())
}

func AddCashbackGranted(currency string, micros int64) {
	if cashbackGrantedCounter == nil || micros <= 0 {
		return
	}
	cashbackGrantedCounter.WithLabelValues(currency).Add(float64(micros))
}

func IncrementUsageConflict(campaignID string) {
	if usageConflictCounter == nil {
		return
	}
	usageConflictCounter.WithLabelValues(campaignID).Inc()
}

func IncrementGrantContention(campaignID string) {
	if grantContentionCounter == nil {
		return
	}
	grantContentionCounter.WithLabelValues(campaignID).Inc()
}

func IncrementCapBreach(campaignID string) {
	if capBreachCounter == nil {
		return
	}
	capBreachCounter.WithLabelValues(campaignID).Inc()
}

func SetSnapshotSize(limits, commissions, campaigns int, loadedAt time.Time) {
	if snapshotRulesGauge == nil {
		return
	}
	snapshotRulesGauge.WithLabelValues("limit").Set(float64(limits))
	snapshotRulesGauge.WithLabelValues("commission").Set(float64(commissions))
	snapshotRulesGauge.WithLabelValues("campaign").Set(float64(campaigns))
	snapshotLoadedTimestamp.Set(float64(loadedAt.Unix()))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementUsageRecordFailure() {
	if usageRecordFailures == nil {
		return
	}
	usageRecordFailures.Inc()
}
