// Package utils holds helpers shared by capture sources.
package utils

import (
	"fmt"

	"golang.org/x/net/bpf"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeIPv6 = 0x86dd
	protoUDP      = 17
)

// RoCEFilter returns a classic BPF program equivalent to
// "udp dst port <port>" over Ethernet for both IPv4 and IPv6. Matching
// frames are accepted up to snapLen bytes. IPv4 fragments after the first
// and IPv6 packets with extension headers are dropped.
func RoCEFilter(port uint16, snapLen int) []bpf.Instruction {
	return []bpf.Instruction{
		/* 0 */ bpf.LoadAbsolute{Off: 12, Size: 2},
		/* 1 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv4, SkipFalse: 7},
		/* 2 */ bpf.LoadAbsolute{Off: 23, Size: 1},
		/* 3 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: protoUDP, SkipFalse: 11},
		/* 4 */ bpf.LoadAbsolute{Off: 20, Size: 2},
		/* 5 */ bpf.JumpIf{Cond: bpf.JumpBitsSet, Val: 0x1fff, SkipTrue: 9},
		/* 6 */ bpf.LoadMemShift{Off: 14},
		/* 7 */ bpf.LoadIndirect{Off: 16, Size: 2},
		/* 8 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipTrue: 5, SkipFalse: 6},
		/* 9 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: etherTypeIPv6, SkipFalse: 5},
		/* 10 */ bpf.LoadAbsolute{Off: 20, Size: 1},
		/* 11 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: protoUDP, SkipFalse: 3},
		/* 12 */ bpf.LoadAbsolute{Off: 56, Size: 2},
		/* 13 */ bpf.JumpIf{Cond: bpf.JumpEqual, Val: uint32(port), SkipFalse: 1},
		/* 14 */ bpf.RetConstant{Val: uint32(snapLen)},
		/* 15 */ bpf.RetConstant{Val: 0},
	}
}

// CompileRoCEFilter assembles RoCEFilter for attaching to a socket.
func CompileRoCEFilter(port uint16, snapLen int) ([]bpf.RawInstruction, error) {
	if snapLen <= 0 {
		return nil, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	raw, err := bpf.Assemble(RoCEFilter(port, snapLen))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble BPF filter: %w", err)
	}
	return raw, nil
}
