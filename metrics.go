package userauth

import (
	"sync/atomic"
	"time"

	"github.com/VilnaCRM-Org/user-service-sub004/internal/flows"
)

// MetricID indexes one in-process counter.
type MetricID uint16

const (
	MetricVerifySuccess MetricID = iota
	MetricVerifyFailure
	MetricSignInSuccess
	MetricSignInFailure
	MetricSignInLocked
	MetricSessionCreated
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorRejected
	MetricRecoveryCodeUsed
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshTheft
	MetricLogout
	MetricLogoutAll
	MetricPasswordResetRequest
	MetricPasswordResetRateLimited
	MetricPasswordResetConfirm
	MetricPasswordResetFailure
	MetricPasswordChanged
	// MetricVerifyLatency only carries a histogram.
	MetricVerifyLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds cache-line padded atomic counters and a latency histogram
// for Authenticate.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricVerifyLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricVerifyLatency].buckets[i])
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}

func flowMetricIDs() flows.MetricIDs {
	return flows.MetricIDs{
		VerifySuccess:     int(MetricVerifySuccess),
		VerifyFailure:     int(MetricVerifyFailure),
		SignInSuccess:     int(MetricSignInSuccess),
		SignInFailure:     int(MetricSignInFailure),
		SignInLocked:      int(MetricSignInLocked),
		SessionCreated:    int(MetricSessionCreated),
		TwoFactorRequired: int(MetricTwoFactorRequired),
		TwoFactorSuccess:  int(MetricTwoFactorSuccess),
		TwoFactorFailure:  int(MetricTwoFactorFailure),
		TwoFactorRejected: int(MetricTwoFactorRejected),
		RecoveryCodeUsed:  int(MetricRecoveryCodeUsed),
		RefreshSuccess:    int(MetricRefreshSuccess),
		RefreshFailure:    int(MetricRefreshFailure),
		RefreshTheft:      int(MetricRefreshTheft),
		Logout:            int(MetricLogout),
		LogoutAll:         int(MetricLogoutAll),
		ResetRequest:      int(MetricPasswordResetRequest),
		ResetRateLimited:  int(MetricPasswordResetRateLimited),
		ResetConfirm:      int(MetricPasswordResetConfirm),
		ResetFailure:      int(MetricPasswordResetFailure),
		PasswordChanged:   int(MetricPasswordChanged),
	}
}
