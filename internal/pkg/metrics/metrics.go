package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics はアプリケーションのメトリクスを管理する
type Metrics struct {
	// HTTPリクエストの総数（method, path, status_code）
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPリクエストのレイテンシ（method, path）
	HTTPRequestDuration *prometheus.HistogramVec

	// チケット購入の総数（status: success, sold_out, insufficient_capacity, payment_failed, error）
	PurchasesTotal *prometheus.CounterVec

	// 在庫枠の予約操作（operation: reserve/commit/release, status: success/failed）
	CapacityOperationsTotal *prometheus.CounterVec

	// 決済の状態遷移（method, to_status）
	PaymentTransitionsTotal *prometheus.CounterVec

	// プロバイダコールバックの処理結果（provider, result: applied, duplicate, unknown, malformed）
	CallbacksTotal *prometheus.CounterVec

	// 外部プロバイダ呼び出しのレイテンシ（provider, operation）
	ProviderRequestDuration *prometheus.HistogramVec

	// アクティブなチケット数（status: pending, confirmed）
	ActiveTickets *prometheus.GaugeVec
}

// New は新しいMetricsインスタンスを作成し、デフォルトレジストリに登録する
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry は指定したレジストリにメトリクスを登録する
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		PurchasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ticket_purchases_total",
				Help: "Total number of ticket purchase attempts",
			},
			[]string{"status"},
		),
		CapacityOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capacity_operations_total",
				Help: "Total number of capacity ledger operations",
			},
			[]string{"operation", "status"},
		),
		PaymentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transitions_total",
				Help: "Total number of payment state transitions",
			},
			[]string{"method", "to_status"},
		),
		CallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_callbacks_total",
				Help: "Total number of provider callback deliveries",
			},
			[]string{"provider", "result"},
		),
		ProviderRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_request_duration_seconds",
				Help:    "Time spent on outbound payment provider calls",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "operation"},
		),
		ActiveTickets: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_tickets",
				Help: "Current number of active tickets",
			},
			[]string{"status"},
		),
	}

	// レジストリに登録
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PurchasesTotal,
		m.CapacityOperationsTotal,
		m.PaymentTransitionsTotal,
		m.CallbacksTotal,
		m.ProviderRequestDuration,
		m.ActiveTickets,
	)

	return m
}

// デフォルトのメトリクスインスタンス
var defaultMetrics *Metrics

// Init はデフォルトのメトリクスインスタンスを初期化する
func Init() *Metrics {
	defaultMetrics = New()
	return defaultMetrics
}

// Get はデフォルトのメトリクスインスタンスを返す
func Get() *Metrics {
	return defaultMetrics
}
