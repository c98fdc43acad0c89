package main

import (
	"time"

	"github.com/pion/webrtc/v3"

	"vcv/internal/core/domain"
	webrtcinfra "vcv/internal/infrastructure/webrtc"
	"vcv/pkg/config"
)

func mediaCodecs(cfg *config.Config) []domain.RtpCodecCapability {
	codecs := make([]domain.RtpCodecCapability, 0, len(cfg.Media.Codecs))
	for _, c := range cfg.Media.Codecs {
		codecs = append(codecs, domain.RtpCodecCapability{
			Kind:       domain.MediaKind(c.Kind),
			MimeType:   c.MimeType,
			ClockRate:  c.ClockRate,
			Channels:   c.Channels,
			Parameters: c.Parameters,
		})
	}
	return codecs
}

func engineConfig(cfg *config.Config) webrtcinfra.Config {
	var ec webrtcinfra.Config
	for _, s := range cfg.Media.ICEServers {
		ec.ICEServers = append(ec.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	ec.PortRange.Min = cfg.Media.RTCMinPort
	ec.PortRange.Max = cfg.Media.RTCMaxPort
	ec.ICELite = cfg.Media.ICELite
	return ec
}

func transportOptions(cfg *config.Config) domain.TransportOptions {
	return domain.TransportOptions{
		ListenIP:                        cfg.Media.ListenIP,
		AnnouncedIP:                     cfg.Media.AnnouncedIP,
		EnableUDP:                       true,
		EnableTCP:                       true,
		PreferUDP:                       true,
		InitialAvailableOutgoingBitrate: cfg.Media.InitialAvailableOutgoingBitrate,
	}
}

// directoryRefreshInterval is how often live rooms are re-announced so their
// directory entries outlive RoomTTL. Zero disables refreshing.
func directoryRefreshInterval(cfg *config.Config) time.Duration {
	if !cfg.Redis.Enabled || cfg.Redis.RoomTTL <= 0 {
		return 0
	}
	return cfg.Redis.RoomTTL / 3
}
