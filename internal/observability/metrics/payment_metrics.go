package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PaymentOutcomeSettled   = "settled"
	PaymentOutcomeDuplicate = "duplicate"
	PaymentOutcomeRejected  = "rejected"
)

const (
	BillClassOverdue = "overdue"
	BillClassCurrent = "current"
	BillClassFuture  = "future"
)

// PaymentMetrics captures payment reconciliation signals.
type PaymentMetrics struct {
	payments     *prometheus.CounterVec
	billsSettled *prometheus.CounterVec
	amounts      prometheus.Observer
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payment returns the singleton payment metrics registry.
func Payment() *PaymentMetrics {
	return PaymentWithConfig(Config{})
}

// PaymentWithConfig returns the singleton payment metrics registry using config labels.
func PaymentWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// ResetPaymentMetricsForTest resets the payment metrics singleton for tests.
func ResetPaymentMetricsForTest() {
	paymentMetricsOnce = sync.Once{}
	paymentMetrics = nil
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	labels := constLabels(cfg)

	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_payments_total",
		Help:        "Payment transactions by outcome.",
		ConstLabels: labels,
	}, []string{"outcome"})
	billsSettled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parcelledger_bills_settled_total",
		Help:        "Billing records fully settled per payment, by class.",
		ConstLabels: labels,
	}, []string{"class"})
	amounts := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "parcelledger_payment_amount",
		Help:        "Distribution of applied payment amounts.",
		Buckets:     prometheus.ExponentialBuckets(100, 4, 10),
		ConstLabels: labels,
	})

	registerer.MustRegister(payments, billsSettled, amounts)

	return &PaymentMetrics{
		payments:     payments,
		billsSettled: billsSettled,
		amounts:      amounts,
	}
}

// IncPayment increments the payment counter for an outcome.
func (m *PaymentMetrics) IncPayment(outcome string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(outcome).Inc()
}

// AddBillsSettled increments the settled bill counter for a class by count.
func (m *PaymentMetrics) AddBillsSettled(class string, count int) {
	if m == nil || m.billsSettled == nil || count <= 0 {
		return
	}
	m.billsSettled.WithLabelValues(class).Add(float64(count))
}

// ObserveAmount records the applied payment amount.
func (m *PaymentMetrics) ObserveAmount(amount float64) {
	if m == nil || m.amounts == nil || amount <= 0 {
		return
	}
	m.amounts.Observe(amount)
}
