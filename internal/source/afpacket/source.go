//go:build linux

// Package afpacket captures RoCEv2 frames from a network interface with
// AF_PACKET TPACKET_V3.
package afpacket

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/core"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/source"
	"firestige.xyz/rocev2/internal/utils"
)

const Name = "afpacket"

type Source struct {
	handle *afpacket.TPacket

	device    string
	frameSize int
	blockSize int
	numBlocks int
	timeoutMs int
	port      uint16
}

// Open starts capturing on cfg.Interface. Only UDP datagrams to
// cfg.UDPPort pass the kernel filter.
func Open(cfg config.CaptureConfig) (*Source, error) {
	if cfg.Interface == "" {
		return nil, core.ErrInterfaceRequired
	}
	frameSize, blockSize, numBlocks, err := recomputeSize(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	s := &Source{
		device:    cfg.Interface,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
		timeoutMs: cfg.TimeoutMs,
		port:      uint16(cfg.UDPPort),
	}
	if err := s.open(cfg.SnapLen); err != nil {
		return nil, err
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"interface":  s.device,
		"frame_size": s.frameSize,
		"block_size": s.blockSize,
		"num_blocks": s.numBlocks,
		"udp_port":   s.port,
	}).Info("afpacket capture started")
	return s, nil
}

func (s *Source) open(snapLen int) error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.OptPollTimeout(s.timeoutMs),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("afpacket: open %s: %w", s.device, err)
	}

	filter, err := utils.CompileRoCEFilter(s.port, snapLen)
	if err != nil {
		tp.Close()
		return err
	}
	if err := tp.SetBPF(filter); err != nil {
		tp.Close()
		return fmt.Errorf("afpacket: attach filter: %w", err)
	}
	s.handle = tp
	return nil
}

func (s *Source) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, core.ErrSourceClosed
	}
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, ci, source.ErrTimeout
	}
	return data, ci, err
}

func (s *Source) LinkType() layers.LinkType { return layers.LinkTypeEthernet }

func (s *Source) Close() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}
