package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"symbol", "side", "strategy"},
	)
	OrderClampsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "order_clamps_total", Help: "Orders resized to stay under the value ceiling"},
	)
	RescansTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rescans_total", Help: "Universe rescans completed"},
	)
	StrategyTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "strategy_timeouts_total", Help: "Strategy signal calls that timed out"},
		[]string{"strategy"},
	)
	WatchdogRecoveriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "watchdog_recoveries_total", Help: "Automated recoveries triggered by the watchdog"},
	)
	MonitoredSymbols = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "monitored_symbols", Help: "Symbols in the monitored universe"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Symbols with an open position"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal, OrdersTotal, OrderClampsTotal, RescansTotal,
		StrategyTimeoutsTotal, WatchdogRecoveriesTotal, MonitoredSymbols, OpenPositions,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
