package webrtc

import (
	"context"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"vcv/internal/core/domain"
	"vcv/internal/core/ports"
)

// Config holds the process wide media settings. Per-transport addresses come
// from domain.TransportOptions.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	ICELite bool
}

// Engine is a pion based SFU media plane. Every transport is an ORTC
// ICE/DTLS pair with its own pion API, so producers can register the payload
// types they send without affecting other transports.
type Engine struct {
	config Config

	mu      sync.Mutex
	routers map[string]*Router
	closed  bool

	logger *zap.SugaredLogger
}

var _ ports.MediaEngine = (*Engine)(nil)

func NewEngine(config Config, logger *zap.SugaredLogger) *Engine {
	return &Engine{
		config:  config,
		routers: make(map[string]*Router),
		logger:  logger,
	}
}

func (e *Engine) CreateRouter(ctx context.Context, codecs []domain.RtpCodecCapability) (ports.Router, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	caps, err := buildCapabilities(codecs)
	if err != nil {
		return nil, err
	}

	r := newRouter(uuid.NewString(), e, caps)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	e.routers[r.id] = r
	e.logger.Debugw("router created", "router_id", r.id, "codecs", len(caps.Codecs))
	return r, nil
}

// Close closes every router and refuses new ones.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	routers := make([]*Router, 0, len(e.routers))
	for _, r := range e.routers {
		routers = append(routers, r)
	}
	e.mu.Unlock()

	for _, r := range routers {
		r.Close()
	}
	return nil
}

// Routers returns the number of open routers.
func (e *Engine) Routers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.routers)
}

func (e *Engine) removeRouter(id string) {
	e.mu.Lock()
	delete(e.routers, id)
	e.mu.Unlock()
}

// newAPI builds the pion API for one transport.
func (e *Engine) newAPI(opts domain.TransportOptions, caps domain.RtpCapabilities) (*webrtc.API, *webrtc.MediaEngine, error) {
	media := &webrtc.MediaEngine{}
	for _, c := range caps.Codecs {
		if err := media.RegisterCodec(capabilityToPion(c), codecTypeOf(c.Kind)); err != nil {
			return nil, nil, err
		}
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, registry); err != nil {
		return nil, nil, err
	}

	settings := webrtc.SettingEngine{}
	if e.config.PortRange.Min > 0 && e.config.PortRange.Max > 0 {
		if err := settings.SetEphemeralUDPPortRange(e.config.PortRange.Min, e.config.PortRange.Max); err != nil {
			return nil, nil, err
		}
	}
	settings.SetLite(e.config.ICELite)
	settings.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
	if ip := net.ParseIP(opts.ListenIP); ip != nil && !ip.IsUnspecified() {
		settings.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
	}
	if opts.AnnouncedIP != "" {
		settings.SetNAT1To1IPs([]string{opts.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if opts.EnableTCP {
		e.logger.Debugw("ICE over TCP not supported, using UDP only")
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(registry),
	)
	return api, media, nil
}
