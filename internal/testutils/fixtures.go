package testutils

import "vcv/internal/core/domain"

// OpusCodecs is a router codec list with opus and VP8.
func OpusCodecs() []domain.RtpCodecCapability {
	return []domain.RtpCodecCapability{
		{Kind: domain.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 111},
		{Kind: domain.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 96},
	}
}

// OpusRtpParameters are producer parameters for an opus track.
func OpusRtpParameters(ssrc uint32) domain.RtpParameters {
	return domain.RtpParameters{
		Mid:       "0",
		Codecs:    []domain.RtpCodecParameters{{MimeType: "audio/opus", PayloadType: 111, ClockRate: 48000, Channels: 2}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: ssrc}},
		Rtcp:      domain.RtcpParameters{Cname: "test"},
	}
}

// VP8RtpParameters are producer parameters for a VP8 track.
func VP8RtpParameters(ssrc uint32) domain.RtpParameters {
	return domain.RtpParameters{
		Mid:       "1",
		Codecs:    []domain.RtpCodecParameters{{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000}},
		Encodings: []domain.RtpEncodingParameters{{SSRC: ssrc}},
		Rtcp:      domain.RtcpParameters{Cname: "test"},
	}
}

// AudioOnlyCapabilities can receive opus only.
func AudioOnlyCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{Codecs: OpusCodecs()[:1]}
}

// FullCapabilities can receive everything in OpusCodecs.
func FullCapabilities() domain.RtpCapabilities {
	return domain.RtpCapabilities{Codecs: OpusCodecs()}
}
