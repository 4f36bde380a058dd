package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/suitability-cli/internal/config"
)

var alertCfg = config.MonitoringConfig{FailureRateThreshold: 0.25, ZonesSkippedThreshold: 0.1, LookbackWindowHours: 1}

func TestAlerter_Evaluate(t *testing.T) {
	tests := []struct {
		name string
		snap Snapshot
		want []AlertType
	}{
		{name: "healthy", snap: Snapshot{RunsComplete: 10, ZonesScored: 100}},
		{name: "failure rate", snap: Snapshot{RunsComplete: 3, RunsFailed: 3, FailRate: 0.5}, want: []AlertType{AlertRunFailureRate}},
		{name: "too few runs to judge", snap: Snapshot{RunsComplete: 1, RunsFailed: 2, FailRate: 0.66}},
		{name: "zones skipped", snap: Snapshot{RunsComplete: 5, ZonesScored: 8, ZonesSkipped: 2, ZonesSkippedRate: 0.2}, want: []AlertType{AlertZonesSkipped}},
		{
			name: "both",
			snap: Snapshot{RunsComplete: 5, RunsFailed: 5, FailRate: 0.5, ZonesScored: 1, ZonesSkipped: 1, ZonesSkippedRate: 0.5},
			want: []AlertType{AlertRunFailureRate, AlertZonesSkipped},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []AlertType
			for _, a := range NewAlerter(alertCfg).Evaluate(&tt.snap) {
				got = append(got, a.Type)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAlerter_SendAlerts(t *testing.T) {
	var mu sync.Mutex
	var received []Alert
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var a Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&a))
		mu.Lock()
		received = append(received, a)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := alertCfg
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertZonesSkipped, Message: "m"}})

	assert.Equal(t, 1, sent)
	require.Len(t, received, 1)
	assert.Equal(t, AlertZonesSkipped, received[0].Type)
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := alertCfg
	cfg.WebhookURL = srv.URL
	assert.Equal(t, 0, NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	assert.Equal(t, 0, NewAlerter(alertCfg).SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}}))
}
