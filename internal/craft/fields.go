package craft

import (
	"encoding/hex"
	"fmt"
	"math"
	"net"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/pkg/ixia"
	"firestige.xyz/rocev2/pkg/roce"
)

// layerBuilder turns the fields of one template layer into a wire layer.
type layerBuilder func(fields map[string]any) (gopacket.SerializableLayer, error)

var builders = map[string]layerBuilder{
	config.LayerEther:     buildEther,
	config.LayerDot1Q:     buildDot1Q,
	config.LayerIPv4:      buildIPv4,
	config.LayerIPv6:      buildIPv6,
	config.LayerUDP:       buildUDP,
	config.LayerBTH:       buildBTH,
	config.LayerRETH:      buildRETH,
	config.LayerCNP:       buildCNP,
	config.LayerData16:    buildData16,
	config.LayerPayload:   buildPayload,
	config.LayerICRC:      buildICRC,
	config.LayerIXIAFixed: buildIXIAFixed,
	config.LayerIXIAFloat: buildIXIAFloat,
}

// decodeFields fills out from a template's field map. Scalars are converted
// loosely ("64" and 64 are both a TTL); unknown keys and values that do not
// fit their field are an error.
func decodeFields(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       checkRange,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(fields)
}

// checkRange rejects numbers that would wrap or be truncated when stored into
// an unsigned field.
func checkRange(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return data, nil
	}
	v := reflect.ValueOf(data)
	zero := reflect.Zero(to)
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if v.Int() < 0 || zero.OverflowUint(uint64(v.Int())) {
			return nil, fmt.Errorf("%d does not fit in %s", v.Int(), to)
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if zero.OverflowUint(v.Uint()) {
			return nil, fmt.Errorf("%d does not fit in %s", v.Uint(), to)
		}
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if f < 0 || f != math.Trunc(f) || f >= math.Ldexp(1, to.Bits()) {
			return nil, fmt.Errorf("%g does not fit in %s", f, to)
		}
	}
	return data, nil
}

const (
	defaultSrcMAC = "00:00:00:00:00:00"
	defaultDstMAC = "ff:ff:ff:ff:ff:ff"
	defaultTTL    = 64
	defaultSPort  = 49152
	defaultPKey   = 0xffff
)

type etherFields struct {
	Src  string `mapstructure:"src"`
	Dst  string `mapstructure:"dst"`
	Type uint16 `mapstructure:"type"`
}

func buildEther(fields map[string]any) (gopacket.SerializableLayer, error) {
	f := etherFields{Src: defaultSrcMAC, Dst: defaultDstMAC}
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	src, err := net.ParseMAC(f.Src)
	if err != nil {
		return nil, fmt.Errorf("src: %w", err)
	}
	dst, err := net.ParseMAC(f.Dst)
	if err != nil {
		return nil, fmt.Errorf("dst: %w", err)
	}
	return &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: layers.EthernetType(f.Type)}, nil
}

type dot1qFields struct {
	VLAN     uint16 `mapstructure:"vlan"`
	Priority uint8  `mapstructure:"priority"`
	DEI      bool   `mapstructure:"dei"`
	Type     uint16 `mapstructure:"type"`
}

func buildDot1Q(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f dot1qFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	if f.VLAN > 0xfff {
		return nil, fmt.Errorf("vlan %d exceeds 12 bits", f.VLAN)
	}
	if f.Priority > 7 {
		return nil, fmt.Errorf("priority %d exceeds 3 bits", f.Priority)
	}
	return &layers.Dot1Q{
		VLANIdentifier: f.VLAN,
		Priority:       f.Priority,
		DropEligible:   f.DEI,
		Type:           layers.EthernetType(f.Type),
	}, nil
}

type ipv4Fields struct {
	Src        string `mapstructure:"src"`
	Dst        string `mapstructure:"dst"`
	TOS        uint8  `mapstructure:"tos"`
	TTL        uint8  `mapstructure:"ttl"`
	ID         uint16 `mapstructure:"id"`
	Flags      string `mapstructure:"flags"`
	FragOffset uint16 `mapstructure:"frag_offset"`
}

func buildIPv4(fields map[string]any) (gopacket.SerializableLayer, error) {
	f := ipv4Fields{Src: "127.0.0.1", Dst: "127.0.0.1", TTL: defaultTTL}
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	src, err := parseIP(f.Src, false)
	if err != nil {
		return nil, fmt.Errorf("src: %w", err)
	}
	dst, err := parseIP(f.Dst, false)
	if err != nil {
		return nil, fmt.Errorf("dst: %w", err)
	}
	flags, err := parseIPv4Flags(f.Flags)
	if err != nil {
		return nil, err
	}
	if f.FragOffset > 0x1fff {
		return nil, fmt.Errorf("frag_offset %d exceeds 13 bits", f.FragOffset)
	}
	return &layers.IPv4{
		Version:    4,
		IHL:        5,
		TOS:        f.TOS,
		Id:         f.ID,
		Flags:      flags,
		FragOffset: f.FragOffset,
		TTL:        f.TTL,
		SrcIP:      src,
		DstIP:      dst,
	}, nil
}

type ipv6Fields struct {
	Src          string `mapstructure:"src"`
	Dst          string `mapstructure:"dst"`
	TrafficClass uint8  `mapstructure:"tc"`
	FlowLabel    uint32 `mapstructure:"flow_label"`
	HopLimit     uint8  `mapstructure:"hop_limit"`
}

func buildIPv6(fields map[string]any) (gopacket.SerializableLayer, error) {
	f := ipv6Fields{Src: "::1", Dst: "::1", HopLimit: defaultTTL}
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	src, err := parseIP(f.Src, true)
	if err != nil {
		return nil, fmt.Errorf("src: %w", err)
	}
	dst, err := parseIP(f.Dst, true)
	if err != nil {
		return nil, fmt.Errorf("dst: %w", err)
	}
	if f.FlowLabel > 0xfffff {
		return nil, fmt.Errorf("flow_label 0x%x exceeds 20 bits", f.FlowLabel)
	}
	return &layers.IPv6{
		Version:      6,
		TrafficClass: f.TrafficClass,
		FlowLabel:    f.FlowLabel,
		HopLimit:     f.HopLimit,
		SrcIP:        src,
		DstIP:        dst,
	}, nil
}

type udpFields struct {
	SPort uint16 `mapstructure:"sport"`
	DPort uint16 `mapstructure:"dport"`
}

func buildUDP(fields map[string]any) (gopacket.SerializableLayer, error) {
	f := udpFields{SPort: defaultSPort}
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	return &layers.UDP{SrcPort: layers.UDPPort(f.SPort), DstPort: layers.UDPPort(f.DPort)}, nil
}

type bthFields struct {
	Opcode    string `mapstructure:"opcode"`
	Solicited bool   `mapstructure:"solicited"`
	MigReq    bool   `mapstructure:"mig_req"`
	Pad       uint8  `mapstructure:"pad"`
	TVer      uint8  `mapstructure:"tver"`
	PKey      uint16 `mapstructure:"pkey"`
	ResVar    uint8  `mapstructure:"res_var"`
	DestQP    uint32 `mapstructure:"dest_qp"`
	AckReq    bool   `mapstructure:"ack_req"`
	Res       uint8  `mapstructure:"res"`
	PSN       uint32 `mapstructure:"psn"`
}

func buildBTH(fields map[string]any) (gopacket.SerializableLayer, error) {
	f := bthFields{PKey: defaultPKey}
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	op, err := parseOpcode(f.Opcode)
	if err != nil {
		return nil, err
	}
	return &roce.BTH{
		Opcode:         op,
		SolicitedEvent: f.Solicited,
		MigReq:         f.MigReq,
		PadCount:       f.Pad,
		TVer:           f.TVer,
		PKey:           f.PKey,
		ResVar:         f.ResVar,
		DestQP:         f.DestQP,
		AckReq:         f.AckReq,
		Res:            f.Res,
		PSN:            f.PSN,
	}, nil
}

type rethFields struct {
	VA        uint64 `mapstructure:"va"`
	RKey      uint32 `mapstructure:"rkey"`
	DMALength uint32 `mapstructure:"dma_length"`
}

func buildRETH(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f rethFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	return &roce.RETH{VirtualAddress: f.VA, RemoteKey: f.RKey, DMALength: f.DMALength}, nil
}

type wordsFields struct {
	Words []uint32 `mapstructure:"words"`
}

func decodeWords(fields map[string]any) (roce.Words, error) {
	var f wordsFields
	var w roce.Words
	if err := decodeFields(fields, &f); err != nil {
		return w, err
	}
	if len(f.Words) > len(w) {
		return w, fmt.Errorf("words: %d values, at most %d", len(f.Words), len(w))
	}
	copy(w[:], f.Words)
	return w, nil
}

func buildCNP(fields map[string]any) (gopacket.SerializableLayer, error) {
	w, err := decodeWords(fields)
	if err != nil {
		return nil, err
	}
	return &roce.CNP{Words: w}, nil
}

func buildData16(fields map[string]any) (gopacket.SerializableLayer, error) {
	w, err := decodeWords(fields)
	if err != nil {
		return nil, err
	}
	return &roce.Data16{Words: w}, nil
}

type payloadFields struct {
	Hex  string `mapstructure:"hex"`
	Text string `mapstructure:"text"`
	Size int    `mapstructure:"size"`
}

// buildPayload accepts exactly one of hex, text or size (zero filled).
func buildPayload(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f payloadFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	set := 0
	for _, ok := range []bool{f.Hex != "", f.Text != "", f.Size != 0} {
		if ok {
			set++
		}
	}
	if set > 1 {
		return nil, fmt.Errorf("payload takes one of hex, text or size")
	}
	switch {
	case f.Hex != "":
		b, err := hex.DecodeString(strings.ReplaceAll(f.Hex, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("hex: %w", err)
		}
		return &roce.Payload{Data: b}, nil
	case f.Text != "":
		return &roce.Payload{Data: []byte(f.Text)}, nil
	case f.Size < 0:
		return nil, fmt.Errorf("size %d is negative", f.Size)
	}
	return &roce.Payload{Data: make([]byte, f.Size)}, nil
}

type icrcFields struct {
	Value *uint32 `mapstructure:"value"`
}

func buildICRC(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f icrcFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	t := &roce.ICRC{}
	if f.Value != nil {
		t.Value = *f.Value
	}
	return t, nil
}

// trailerPinned reports whether the icrc fields set an explicit value.
func trailerPinned(fields map[string]any) bool {
	var f icrcFields
	return decodeFields(fields, &f) == nil && f.Value != nil
}

type ixiaFields struct {
	PGID      uint32 `mapstructure:"pgid"`
	Seq       uint32 `mapstructure:"seq"`
	Timestamp uint32 `mapstructure:"timestamp"`
}

func buildIXIAFixed(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f ixiaFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	return ixia.NewFixed(f.PGID, f.Seq, f.Timestamp), nil
}

func buildIXIAFloat(fields map[string]any) (gopacket.SerializableLayer, error) {
	var f ixiaFields
	if err := decodeFields(fields, &f); err != nil {
		return nil, err
	}
	return ixia.NewFloat(f.PGID, f.Seq, f.Timestamp), nil
}

func parseIP(s string, v6 bool) (net.IP, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	if v6 {
		if ip.To4() != nil && !strings.Contains(s, ":") {
			return nil, fmt.Errorf("%q is not an IPv6 address", s)
		}
		return ip.To16(), nil
	}
	if ip4 := ip.To4(); ip4 != nil {
		return ip4, nil
	}
	return nil, fmt.Errorf("%q is not an IPv4 address", s)
}

// parseIPv4Flags accepts "DF", "MF", "DF|MF" (any case, "+" or "," also
// separate) or a number.
func parseIPv4Flags(s string) (layers.IPv4Flag, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		if n > 7 {
			return 0, fmt.Errorf("flags %d exceed 3 bits", n)
		}
		return layers.IPv4Flag(n), nil
	}
	var flags layers.IPv4Flag
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == '+' || r == ',' }) {
		switch strings.ToUpper(strings.TrimSpace(part)) {
		case "DF":
			flags |= layers.IPv4DontFragment
		case "MF":
			flags |= layers.IPv4MoreFragments
		case "EVIL":
			flags |= layers.IPv4EvilBit
		default:
			return 0, fmt.Errorf("unknown IPv4 flag %q", part)
		}
	}
	return flags, nil
}

// parseOpcode resolves an opcode name such as RC_Send_Only or a number.
func parseOpcode(s string) (roce.Opcode, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("opcode is required")
	}
	if op, ok := roce.ParseOpcode(s); ok {
		return op, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
	return roce.Opcode(n), nil
}
