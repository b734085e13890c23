package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/erpledger/internal/domain"
	"github.com/iho/erpledger/internal/usecase"
)

var _ usecase.Metrics = (*Metrics)(nil)

func TestNewRegistersMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewWithRegisterer(registry)

	if m.JournalsPosted == nil || m.HTTPRequests == nil || m.StockMovements == nil {
		t.Fatalf("expected key metrics to be initialized: %+v", m)
	}

	m.JournalReversed()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	if len(metricFamilies) == 0 {
		t.Fatalf("expected registered metrics, got none")
	}
}

func TestBusinessCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.JournalPosted(domain.EventOrderConfirmed)
	m.JournalPosted(domain.EventOrderConfirmed)
	m.PostingFailed(domain.EventPaymentConfirmed, "overpayment")
	m.PostingFailed(domain.EventStockOut, "invariant")
	m.StockMoved(domain.MovementTypeOut)
	m.OpenItemSettled(domain.OpenItemReceivable)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"posted orders", testutil.ToFloat64(m.JournalsPosted.WithLabelValues("ORDER_CONFIRMED")), 2},
		{"overpayments", testutil.ToFloat64(m.PostingErrors.WithLabelValues("PAYMENT_CONFIRMED", "overpayment")), 1},
		{"invariant violations", testutil.ToFloat64(m.InvariantFailures), 1},
		{"stock out", testutil.ToFloat64(m.StockMovements.WithLabelValues("OUT")), 1},
		{"receivable settlements", testutil.ToFloat64(m.OpenItemsSettled.WithLabelValues("RECEIVABLE")), 1},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}
