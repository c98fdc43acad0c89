package webrtc

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcv/internal/core/domain"
)

func TestBuildCapabilities(t *testing.T) {
	caps, err := buildCapabilities([]domain.RtpCodecCapability{
		{Kind: domain.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: domain.MediaKindVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 96},
		{Kind: domain.MediaKindVideo, MimeType: "video/H264", ClockRate: 90000, PreferredPayloadType: 96},
	})
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 3)

	assert.Equal(t, uint8(97), caps.Codecs[0].PreferredPayloadType)
	assert.Equal(t, uint8(96), caps.Codecs[1].PreferredPayloadType)
	assert.Equal(t, uint8(98), caps.Codecs[2].PreferredPayloadType)

	assert.Equal(t, []domain.RtcpFeedback{{Type: "transport-cc"}}, caps.Codecs[0].RtcpFeedback)
	assert.Contains(t, caps.Codecs[1].RtcpFeedback, domain.RtcpFeedback{Type: "nack", Parameter: "pli"})
	assert.NotEmpty(t, caps.HeaderExtensions)
}

func TestBuildCapabilities_Errors(t *testing.T) {
	tests := []struct {
		name   string
		codecs []domain.RtpCodecCapability
	}{
		{name: "empty", codecs: nil},
		{name: "bad kind", codecs: []domain.RtpCodecCapability{{Kind: "data", MimeType: "data/x", ClockRate: 1}}},
		{name: "kind mismatch", codecs: []domain.RtpCodecCapability{{Kind: domain.MediaKindAudio, MimeType: "video/VP8", ClockRate: 90000}}},
		{name: "no clock rate", codecs: []domain.RtpCodecCapability{{Kind: domain.MediaKindAudio, MimeType: "audio/opus"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildCapabilities(tt.codecs)
			assert.Error(t, err)
		})
	}
}

func TestCanConsume(t *testing.T) {
	caps := domain.RtpCapabilities{Codecs: []domain.RtpCodecCapability{
		{Kind: domain.MediaKindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: domain.MediaKindVideo, MimeType: "video/vp8", ClockRate: 90000},
	}}

	tests := []struct {
		name   string
		codecs []domain.RtpCodecParameters
		want   bool
	}{
		{name: "opus", codecs: []domain.RtpCodecParameters{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}}, want: true},
		{name: "mime case", codecs: []domain.RtpCodecParameters{{MimeType: "video/VP8", ClockRate: 90000}}, want: true},
		{name: "rtx first", codecs: []domain.RtpCodecParameters{
			{MimeType: "video/rtx", ClockRate: 90000},
			{MimeType: "video/VP8", ClockRate: 90000},
		}, want: true},
		{name: "mono opus", codecs: []domain.RtpCodecParameters{{MimeType: "audio/opus", ClockRate: 48000, Channels: 1}}, want: false},
		{name: "h264", codecs: []domain.RtpCodecParameters{{MimeType: "video/H264", ClockRate: 90000}}, want: false},
		{name: "no codecs", codecs: nil, want: false},
	}

	h264Caps := domain.RtpCapabilities{Codecs: []domain.RtpCodecCapability{{
		Kind: domain.MediaKindVideo, MimeType: "video/H264", ClockRate: 90000,
		Parameters: map[string]interface{}{"packetization-mode": 1, "profile-level-id": "4d0032"},
	}}}
	h264 := func(params map[string]interface{}) domain.RtpParameters {
		return domain.RtpParameters{Codecs: []domain.RtpCodecParameters{{MimeType: "video/H264", ClockRate: 90000, Parameters: params}}}
	}
	assert.True(t, canConsume(h264(map[string]interface{}{"packetization-mode": float64(1), "profile-level-id": "4d001f"}), h264Caps))
	assert.False(t, canConsume(h264(map[string]interface{}{"profile-level-id": "4d0032"}), h264Caps))
	assert.False(t, canConsume(h264(map[string]interface{}{"packetization-mode": 1, "profile-level-id": "42e01f"}), h264Caps))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, canConsume(domain.RtpParameters{Codecs: tt.codecs}, caps))
		})
	}
}

func TestFmtpLine(t *testing.T) {
	assert.Equal(t, "", fmtpLine(nil))
	assert.Equal(t,
		"level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		fmtpLine(map[string]interface{}{
			"profile-level-id":        "42e01f",
			"packetization-mode":      float64(1),
			"level-asymmetry-allowed": 1,
		}))
	assert.Equal(t, "usedtx=1", fmtpLine(map[string]interface{}{"usedtx": true}))
	assert.Equal(t, "maxplaybackrate=48000", fmtpLine(map[string]interface{}{"maxplaybackrate": float64(48000)}))
}

func TestReceiveParameters(t *testing.T) {
	params := receiveParameters(domain.RtpParameters{
		Codecs: []domain.RtpCodecParameters{
			{MimeType: "video/rtx", PayloadType: 97, ClockRate: 90000},
			{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
		},
		Encodings: []domain.RtpEncodingParameters{
			{SSRC: 1111, Rtx: &domain.RtxParameters{SSRC: 2222}},
			{Rid: "h"},
		},
	})

	require.Len(t, params.Encodings, 2)
	assert.Equal(t, webrtc.SSRC(1111), params.Encodings[0].SSRC)
	assert.Equal(t, webrtc.PayloadType(96), params.Encodings[0].PayloadType)
	assert.Equal(t, webrtc.SSRC(2222), params.Encodings[0].RTX.SSRC)
	assert.Equal(t, "h", params.Encodings[1].RID)
}

func TestCandidatesRoundTrip(t *testing.T) {
	in := []domain.IceCandidate{
		{Foundation: "1", Priority: 2130706431, IP: "203.0.113.7", Protocol: "udp", Port: 10000, Type: "host"},
	}
	pion, err := candidatesToPion(in)
	require.NoError(t, err)
	assert.Equal(t, in, candidatesToDomain(pion))

	_, err = candidatesToPion([]domain.IceCandidate{{Protocol: "sctp", Type: "host"}})
	assert.Error(t, err)
	_, err = candidatesToPion([]domain.IceCandidate{{Protocol: "udp", Type: "bogus"}})
	assert.Error(t, err)
}

func TestDtlsParametersToPion(t *testing.T) {
	tests := []struct {
		role domain.DtlsRole
		want webrtc.DTLSRole
	}{
		{role: domain.DtlsRoleClient, want: webrtc.DTLSRoleClient},
		{role: domain.DtlsRoleServer, want: webrtc.DTLSRoleServer},
		{role: domain.DtlsRoleAuto, want: webrtc.DTLSRoleAuto},
		{role: "", want: webrtc.DTLSRoleAuto},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			out := dtlsParametersToPion(domain.DtlsParameters{
				Role:         tt.role,
				Fingerprints: []domain.DtlsFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}},
			})
			assert.Equal(t, tt.want, out.Role)
			assert.Equal(t, []webrtc.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}, out.Fingerprints)
		})
	}
}
