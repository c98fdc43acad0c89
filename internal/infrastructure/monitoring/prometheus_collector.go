package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vcv/internal/core/domain"
)

// Signal result codes that are not errors.
const (
	codeOK      = "ok"
	codeDropped = "dropped"
)

// PrometheusCollector turns room lifecycle snapshots and signaling results
// into metrics. It is a RoomObserver and the gateway's Metrics sink.
type PrometheusCollector struct {
	roomsActive     prometheus.Gauge
	peersActive     prometheus.Gauge
	producersActive prometheus.Gauge
	consumersActive prometheus.Gauge
	roomsCreated    prometheus.Counter

	signalMessages *prometheus.CounterVec
	signalErrors   *prometheus.CounterVec
	signalDuration *prometheus.HistogramVec

	mu    sync.Mutex
	rooms map[domain.RoomID]domain.RoomInfo
}

// NewPrometheusCollector registers the metrics with reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		roomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcv_rooms_active",
			Help: "Number of live rooms",
		}),
		peersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcv_peers_active",
			Help: "Number of joined peers across rooms",
		}),
		producersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcv_producers_active",
			Help: "Number of open producers across rooms",
		}),
		consumersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vcv_consumers_active",
			Help: "Number of open consumers across rooms",
		}),
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "vcv_rooms_created_total",
			Help: "Total number of rooms created",
		}),

		signalMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcv_signal_messages_total",
			Help: "Signaling requests handled, by type",
		}, []string{"type"}),
		signalErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vcv_signal_errors_total",
			Help: "Signaling requests answered with an error, by type and code",
		}, []string{"type", "code"}),
		signalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcv_signal_request_duration_seconds",
			Help:    "Time spent handling a signaling request",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"type"}),

		rooms: make(map[domain.RoomID]domain.RoomInfo),
	}
}

func (p *PrometheusCollector) RoomCreated(info domain.RoomInfo) {
	p.roomsCreated.Inc()
	p.roomsActive.Inc()
	p.apply(info)
}

func (p *PrometheusCollector) RoomUpdated(info domain.RoomInfo) {
	p.apply(info)
}

func (p *PrometheusCollector) RoomClosed(id domain.RoomID) {
	p.mu.Lock()
	last, ok := p.rooms[id]
	delete(p.rooms, id)
	p.mu.Unlock()

	p.roomsActive.Dec()
	if ok {
		p.peersActive.Sub(float64(last.Peers))
		p.producersActive.Sub(float64(last.Producers))
		p.consumersActive.Sub(float64(last.Consumers))
	}
}

// apply moves the totals by the difference to the room's last snapshot.
func (p *PrometheusCollector) apply(info domain.RoomInfo) {
	p.mu.Lock()
	last := p.rooms[info.ID]
	p.rooms[info.ID] = info
	p.mu.Unlock()

	p.peersActive.Add(float64(info.Peers - last.Peers))
	p.producersActive.Add(float64(info.Producers - last.Producers))
	p.consumersActive.Add(float64(info.Consumers - last.Consumers))
}

func (p *PrometheusCollector) ObserveSignal(msgType, code string, d time.Duration) {
	p.signalMessages.WithLabelValues(msgType).Inc()
	if code != codeOK && code != codeDropped {
		p.signalErrors.WithLabelValues(msgType, code).Inc()
	}
	p.signalDuration.WithLabelValues(msgType).Observe(d.Seconds())
}
