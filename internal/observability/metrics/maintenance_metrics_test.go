package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyTaskReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: TaskReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: TaskReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: TaskReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: TaskReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: TaskReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyTaskReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddRecordsProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newMaintenanceMetrics(registry, Config{
		ServiceName: "parcelledger",
		Environment: "test",
	})

	metrics.AddRecordsProcessed("overdue_transition", "billing_records", 3)

	got := testutil.ToFloat64(metrics.recordsProcessed.WithLabelValues("overdue_transition", "billing_records"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncTaskErrorUsesReasonLabel(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newMaintenanceMetrics(registry, Config{
		ServiceName: "parcelledger",
		Environment: "test",
	})

	metrics.IncTaskError("penalty_refresh", context.DeadlineExceeded)

	got := testutil.ToFloat64(metrics.taskErrors.WithLabelValues("penalty_refresh", TaskReasonDeadlineExceeded))
	if got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestPaymentMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPaymentMetrics(registry, Config{
		ServiceName: "parcelledger",
		Environment: "test",
	})

	metrics.IncPayment(PaymentOutcomeSettled)
	metrics.IncPayment(PaymentOutcomeDuplicate)
	metrics.AddBillsSettled(BillClassOverdue, 2)

	if got := testutil.ToFloat64(metrics.payments.WithLabelValues(PaymentOutcomeSettled)); got != 1 {
		t.Fatalf("expected settled count 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.billsSettled.WithLabelValues(BillClassOverdue)); got != 2 {
		t.Fatalf("expected settled bills 2, got %v", got)
	}
}
