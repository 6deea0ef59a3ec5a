package utils

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/bpf"

	"firestige.xyz/rocev2/pkg/roce"
)

var (
	srcMAC = net.HardwareAddr{0, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
)

func frame(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	p := roce.NewPacket(append([]gopacket.SerializableLayer{&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}}, ls...)...)
	require.NoError(t, p.Fix())
	b, err := p.Bytes()
	require.NoError(t, err)
	return b
}

func ipv4(opts ...func(*layers.IPv4)) *layers.IPv4 {
	ip := &layers.IPv4{IHL: 5, TTL: 64, SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2}}
	for _, o := range opts {
		o(ip)
	}
	return ip
}

func ipv6() *layers.IPv6 {
	return &layers.IPv6{HopLimit: 64, SrcIP: net.ParseIP("fd00::1"), DstIP: net.ParseIP("fd00::2")}
}

func cnp() []gopacket.SerializableLayer {
	return []gopacket.SerializableLayer{&roce.BTH{Opcode: roce.OpcodeCNP, PKey: 0xffff}, &roce.CNP{}, &roce.ICRC{}}
}

func TestRoCEFilter(t *testing.T) {
	vm, err := bpf.NewVM(RoCEFilter(roce.UDPPort, 9216))
	require.NoError(t, err)

	withOptions := func(ip *layers.IPv4) {
		ip.IHL = 6
		ip.Options = []layers.IPv4Option{{OptionType: 1}, {OptionType: 1}, {OptionType: 1}, {OptionType: 0}}
	}
	fragment := func(ip *layers.IPv4) { ip.FragOffset = 100 }

	tests := []struct {
		name   string
		frame  []byte
		accept bool
	}{
		{"ipv4 roce", frame(t, append([]gopacket.SerializableLayer{ipv4(), &layers.UDP{SrcPort: 1000, DstPort: roce.UDPPort}}, cnp()...)...), true},
		{"ipv4 options", frame(t, append([]gopacket.SerializableLayer{ipv4(withOptions), &layers.UDP{SrcPort: 1000, DstPort: roce.UDPPort}}, cnp()...)...), true},
		{"ipv6 roce", frame(t, append([]gopacket.SerializableLayer{ipv6(), &layers.UDP{SrcPort: 1000, DstPort: roce.UDPPort}}, cnp()...)...), true},
		{"ipv4 other port", frame(t, ipv4(), &layers.UDP{SrcPort: roce.UDPPort, DstPort: 53}, gopacket.Payload("dns")), false},
		{"ipv6 other port", frame(t, ipv6(), &layers.UDP{SrcPort: 1000, DstPort: 4792}, gopacket.Payload("x")), false},
		{"ipv4 later fragment", frame(t, ipv4(fragment), &layers.UDP{SrcPort: 1000, DstPort: roce.UDPPort}, gopacket.Payload("x")), false},
		{"ipv4 icmp", frame(t, ipv4(func(ip *layers.IPv4) { ip.Protocol = layers.IPProtocolICMPv4 }), &layers.ICMPv4{}), false},
		{"arp", frame(t, &layers.ARP{
			AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
			HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
			SourceHwAddress: srcMAC, SourceProtAddress: []byte{10, 0, 0, 1},
			DstHwAddress: make([]byte, 6), DstProtAddress: []byte{10, 0, 0, 2},
		}), false},
		{"runt", []byte{0x08, 0x00}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := vm.Run(tt.frame)
			require.NoError(t, err)
			if tt.accept {
				assert.Positive(t, n)
			} else {
				assert.Zero(t, n)
			}
		})
	}
}

func TestCompileRoCEFilter(t *testing.T) {
	raw, err := CompileRoCEFilter(roce.UDPPort, 9216)
	require.NoError(t, err)
	assert.Len(t, raw, len(RoCEFilter(roce.UDPPort, 9216)))

	_, err = CompileRoCEFilter(roce.UDPPort, 0)
	assert.Error(t, err)
}
