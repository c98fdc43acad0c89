package webrtc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v3"

	"vcv/internal/core/domain"
)

const (
	firstDynamicPayloadType = 96
	lastDynamicPayloadType  = 127

	midHeaderExtensionURI = "urn:ietf:params:rtp-hdrext:sdes:mid"
)

// buildCapabilities turns the configured codec list into router
// capabilities. Preferred payload types are kept when free; the rest get the
// lowest free dynamic type.
func buildCapabilities(codecs []domain.RtpCodecCapability) (domain.RtpCapabilities, error) {
	if len(codecs) == 0 {
		return domain.RtpCapabilities{}, ErrNoCodecs
	}

	used := make(map[uint8]bool)
	for _, c := range codecs {
		if c.PreferredPayloadType != 0 {
			used[c.PreferredPayloadType] = true
		}
	}

	next := uint8(firstDynamicPayloadType)
	taken := make(map[uint8]bool)
	caps := domain.RtpCapabilities{Codecs: make([]domain.RtpCodecCapability, 0, len(codecs))}
	for _, c := range codecs {
		if !c.Kind.Valid() {
			return domain.RtpCapabilities{}, fmt.Errorf("codec %s: invalid kind %q", c.MimeType, c.Kind)
		}
		if !strings.HasPrefix(strings.ToLower(c.MimeType), string(c.Kind)+"/") {
			return domain.RtpCapabilities{}, fmt.Errorf("codec %s: mime type does not match kind %q", c.MimeType, c.Kind)
		}
		if c.ClockRate == 0 {
			return domain.RtpCapabilities{}, fmt.Errorf("codec %s: clock rate required", c.MimeType)
		}

		pt := c.PreferredPayloadType
		if pt == 0 || taken[pt] {
			for next <= lastDynamicPayloadType && (used[next] || taken[next]) {
				next++
			}
			if next > lastDynamicPayloadType {
				return domain.RtpCapabilities{}, fmt.Errorf("codec %s: no free payload type", c.MimeType)
			}
			pt = next
		}
		taken[pt] = true

		c.PreferredPayloadType = pt
		if len(c.RtcpFeedback) == 0 {
			c.RtcpFeedback = defaultFeedback(c.Kind)
		}
		caps.Codecs = append(caps.Codecs, c)
	}

	caps.HeaderExtensions = []domain.RtpHeaderExtension{
		{Kind: domain.MediaKindAudio, URI: midHeaderExtensionURI, PreferredID: 1, Direction: "sendrecv"},
		{Kind: domain.MediaKindVideo, URI: midHeaderExtensionURI, PreferredID: 1, Direction: "sendrecv"},
	}
	return caps, nil
}

func defaultFeedback(kind domain.MediaKind) []domain.RtcpFeedback {
	if kind == domain.MediaKindAudio {
		return []domain.RtcpFeedback{{Type: "transport-cc"}}
	}
	return []domain.RtcpFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "goog-remb"},
		{Type: "transport-cc"},
	}
}

// sameCodec compares the parts of two codecs that decide whether RTP for one
// can be decoded as the other.
func sameCodec(mimeA string, clockA uint32, channelsA uint16, paramsA map[string]interface{},
	mimeB string, clockB uint32, channelsB uint16, paramsB map[string]interface{}) bool {
	if !strings.EqualFold(mimeA, mimeB) || clockA != clockB {
		return false
	}
	switch strings.ToLower(mimeA) {
	case "video/h264":
		return h264Compatible(paramsA, paramsB)
	}
	if strings.HasPrefix(strings.ToLower(mimeA), "audio/") {
		return normalizeChannels(channelsA) == normalizeChannels(channelsB)
	}
	return true
}

// h264Compatible requires the same packetization mode and, when both sides
// name one, the same profile.
func h264Compatible(a, b map[string]interface{}) bool {
	if paramOr(a, "packetization-mode", "0") != paramOr(b, "packetization-mode", "0") {
		return false
	}
	pa, pb := paramOr(a, "profile-level-id", ""), paramOr(b, "profile-level-id", "")
	if len(pa) >= 4 && len(pb) >= 4 {
		return strings.EqualFold(pa[:4], pb[:4])
	}
	return true
}

func paramOr(params map[string]interface{}, key, fallback string) string {
	v, ok := params[key]
	if !ok {
		return fallback
	}
	return formatParam(v)
}

func normalizeChannels(c uint16) uint16 {
	if c == 0 {
		return 1
	}
	return c
}

// mediaCodec returns the first codec that carries media, skipping RTX and
// FEC entries.
func mediaCodec(rtp domain.RtpParameters) (domain.RtpCodecParameters, bool) {
	for _, c := range rtp.Codecs {
		switch strings.ToLower(c.MimeType) {
		case "audio/rtx", "video/rtx", "video/red", "video/ulpfec", "video/flexfec-03":
			continue
		}
		return c, true
	}
	return domain.RtpCodecParameters{}, false
}

// findCapability looks up the capability entry matching codec.
func findCapability(codec domain.RtpCodecParameters, caps domain.RtpCapabilities) (domain.RtpCodecCapability, bool) {
	for _, c := range caps.Codecs {
		if sameCodec(codec.MimeType, codec.ClockRate, codec.Channels, codec.Parameters,
			c.MimeType, c.ClockRate, c.Channels, c.Parameters) {
			return c, true
		}
	}
	return domain.RtpCodecCapability{}, false
}

// canConsume reports whether an endpoint with caps can decode a producer
// sending rtp.
func canConsume(rtp domain.RtpParameters, caps domain.RtpCapabilities) bool {
	codec, ok := mediaCodec(rtp)
	if !ok {
		return false
	}
	_, ok = findCapability(codec, caps)
	return ok
}

func codecTypeOf(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.MediaKindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// fmtpLine renders codec parameters as an SDP fmtp value with sorted keys.
func fmtpLine(params map[string]interface{}) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatParam(params[k]))
	}
	return strings.Join(parts, ";")
}

func formatParam(v interface{}) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(val)
	}
}

func toPionFeedback(fb []domain.RtcpFeedback) []webrtc.RTCPFeedback {
	out := make([]webrtc.RTCPFeedback, 0, len(fb))
	for _, f := range fb {
		out = append(out, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return out
}

func capabilityToPion(c domain.RtpCodecCapability) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtpLine(c.Parameters),
			RTCPFeedback: toPionFeedback(c.RtcpFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
	}
}

func parametersToPion(c domain.RtpCodecParameters) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:     c.MimeType,
			ClockRate:    c.ClockRate,
			Channels:     c.Channels,
			SDPFmtpLine:  fmtpLine(c.Parameters),
			RTCPFeedback: toPionFeedback(c.RtcpFeedback),
		},
		PayloadType: webrtc.PayloadType(c.PayloadType),
	}
}

// consumerCodec describes the router's version of a codec to a subscriber.
func consumerCodec(c domain.RtpCodecCapability) domain.RtpCodecParameters {
	return domain.RtpCodecParameters{
		MimeType:     c.MimeType,
		PayloadType:  c.PreferredPayloadType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		Parameters:   c.Parameters,
		RtcpFeedback: c.RtcpFeedback,
	}
}

func receiveParameters(rtp domain.RtpParameters) webrtc.RTPReceiveParameters {
	var pt webrtc.PayloadType
	if codec, ok := mediaCodec(rtp); ok {
		pt = webrtc.PayloadType(codec.PayloadType)
	}
	params := webrtc.RTPReceiveParameters{}
	for _, enc := range rtp.Encodings {
		coding := webrtc.RTPCodingParameters{
			RID:         enc.Rid,
			SSRC:        webrtc.SSRC(enc.SSRC),
			PayloadType: pt,
		}
		if enc.Rtx != nil {
			coding.RTX = webrtc.RTPRtxParameters{SSRC: webrtc.SSRC(enc.Rtx.SSRC)}
		}
		params.Encodings = append(params.Encodings, webrtc.RTPDecodingParameters{RTPCodingParameters: coding})
	}
	return params
}

func encodingSSRCs(rtp domain.RtpParameters) []uint32 {
	var ssrcs []uint32
	for _, enc := range rtp.Encodings {
		if enc.SSRC != 0 {
			ssrcs = append(ssrcs, enc.SSRC)
		}
	}
	return ssrcs
}

func iceParametersToDomain(p webrtc.ICEParameters) domain.IceParameters {
	return domain.IceParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		IceLite:          p.ICELite,
	}
}

func iceParametersToPion(p domain.IceParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.IceLite,
	}
}

func candidatesToDomain(cands []webrtc.ICECandidate) []domain.IceCandidate {
	out := make([]domain.IceCandidate, 0, len(cands))
	for _, c := range cands {
		out = append(out, domain.IceCandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}

func candidatesToPion(cands []domain.IceCandidate) ([]webrtc.ICECandidate, error) {
	out := make([]webrtc.ICECandidate, 0, len(cands))
	for _, c := range cands {
		protocol, err := webrtc.NewICEProtocol(c.Protocol)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		typ, err := webrtc.NewICECandidateType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", c.Foundation, err)
		}
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.IP,
			Protocol:   protocol,
			Port:       c.Port,
			Typ:        typ,
			Component:  1,
			TCPType:    c.TCPType,
		})
	}
	return out, nil
}

func dtlsParametersToDomain(p webrtc.DTLSParameters) domain.DtlsParameters {
	out := domain.DtlsParameters{Role: domain.DtlsRoleAuto}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, domain.DtlsFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func dtlsParametersToPion(p domain.DtlsParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch p.Role {
	case domain.DtlsRoleClient:
		out.Role = webrtc.DTLSRoleClient
	case domain.DtlsRoleServer:
		out.Role = webrtc.DTLSRoleServer
	}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}
