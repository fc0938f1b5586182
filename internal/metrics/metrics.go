package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the babyfoon collectors. A nil *Metrics records nothing.
type Metrics struct {
	TokensIssued   *prometheus.CounterVec
	ActiveChannels prometheus.Gauge
	ChannelClaims  *prometheus.CounterVec

	ChunksUploaded *prometheus.CounterVec
	ChunkSize      prometheus.Histogram
	ChunkPolls     *prometheus.CounterVec

	LoudAlerts prometheus.Counter

	SFUPeers       prometheus.Gauge
	SignalMessages *prometheus.CounterVec
	JoinsRejected  *prometheus.CounterVec
}

// New registers all collectors on reg; use prometheus.DefaultRegisterer for /metrics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_tokens_issued_total",
			Help: "Join credentials issued, by role and result",
		}, []string{"role", "result"}),
		ActiveChannels: f.NewGauge(prometheus.GaugeOpts{
			Name: "babyfoon_active_channels",
			Help: "Channels with an active broadcaster",
		}),
		ChannelClaims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_channel_claims_total",
			Help: "Channel claim attempts, by result",
		}, []string{"result"}),

		ChunksUploaded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_chunks_uploaded_total",
			Help: "Fallback chunks written to storage, by result",
		}, []string{"result"}),
		ChunkSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "babyfoon_chunk_size_bytes",
			Help:    "Size of uploaded fallback chunks",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		ChunkPolls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_chunk_polls_total",
			Help: "Latest-chunk lookups, by result",
		}, []string{"result"}),

		LoudAlerts: f.NewCounter(prometheus.CounterOpts{
			Name: "babyfoon_loud_alerts_total",
			Help: "Debounced loud noise alerts",
		}),

		SFUPeers: f.NewGauge(prometheus.GaugeOpts{
			Name: "babyfoon_sfu_peers",
			Help: "Peers connected to the SFU",
		}),
		SignalMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_signal_messages_total",
			Help: "Signaling messages received, by type",
		}, []string{"type"}),
		JoinsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "babyfoon_joins_rejected_total",
			Help: "Rejected SFU joins, by reason",
		}, []string{"reason"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) RecordToken(role string, err error) {
	if m == nil {
		return
	}
	m.TokensIssued.WithLabelValues(role, result(err)).Inc()
}

func (m *Metrics) RecordClaim(err error) {
	if m == nil {
		return
	}
	m.ChannelClaims.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SetActiveChannels(n int) {
	if m == nil {
		return
	}
	m.ActiveChannels.Set(float64(n))
}

func (m *Metrics) RecordUpload(size int, err error) {
	if m == nil {
		return
	}
	m.ChunksUploaded.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.ChunkSize.Observe(float64(size))
	}
}

func (m *Metrics) RecordPoll(err error) {
	if m == nil {
		return
	}
	m.ChunkPolls.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) RecordLoudAlert() {
	if m == nil {
		return
	}
	m.LoudAlerts.Inc()
}

func (m *Metrics) AddPeers(delta int) {
	if m == nil {
		return
	}
	m.SFUPeers.Add(float64(delta))
}

func (m *Metrics) RecordSignal(msgType string) {
	if m == nil {
		return
	}
	m.SignalMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) RecordJoinRejected(reason string) {
	if m == nil {
		return
	}
	m.JoinsRejected.WithLabelValues(reason).Inc()
}
