package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordUpload(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RecordUpload(2048, nil)
	m.RecordUpload(0, errors.New("boom"))
	m.RecordUpload(4096, nil)

	if got := testutil.ToFloat64(m.ChunksUploaded.WithLabelValues("ok")); got != 2 {
		t.Fatalf("ok uploads = %v", got)
	}
	if got := testutil.ToFloat64(m.ChunksUploaded.WithLabelValues("error")); got != 1 {
		t.Fatalf("failed uploads = %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordToken("broadcaster", nil)
	m.RecordUpload(1, nil)
	m.RecordLoudAlert()
	m.AddPeers(1)
	m.SetActiveChannels(3)
}
