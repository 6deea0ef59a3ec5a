// Package craft builds wire frames from packet templates.
package craft

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/core"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/metrics"
	"firestige.xyz/rocev2/pkg/icrc"
	"firestige.xyz/rocev2/pkg/roce"
)

// Frame is a crafted packet together with its wire bytes.
type Frame struct {
	Name   string
	Packet *roce.Packet
	Data   []byte
}

// Build crafts the packet a template describes. Lengths, checksums and
// omitted type fields are filled in. When the packet carries a BTH its iCRC
// is installed into the trailer, unless the template pins the trailer value.
func Build(tpl *config.PacketTemplate, logger log.Logger) (*Frame, error) {
	if logger == nil {
		logger = log.GetLogger()
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	ecn, markECN, err := config.ParseECN(tpl.ECN)
	if err != nil {
		return nil, err
	}

	ls := make([]gopacket.SerializableLayer, 0, len(tpl.Layers))
	pinned := false
	for i, lt := range tpl.Layers {
		build, ok := builders[lt.Type]
		if !ok {
			return nil, fmt.Errorf("layer %d: %w %q", i, core.ErrUnknownLayer, lt.Type)
		}
		l, err := build(lt.Fields)
		if err != nil {
			return nil, fmt.Errorf("%w: layer %d (%s): %v", core.ErrTemplateInvalid, i, lt.Type, err)
		}
		if lt.Type == config.LayerICRC {
			pinned = trailerPinned(lt.Fields)
		}
		ls = append(ls, l)
	}

	p := roce.NewPacket(ls...)
	if markECN {
		setECN(p, ecn)
	}
	if err := p.Fix(); err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
	}

	logger = logger.WithField("template", tpl.Name)
	if p.BTH() != nil && !pinned {
		v, err := icrc.Install(p)
		switch {
		case errors.Is(err, icrc.ErrMissingTrailer):
			logger.Warn("packet has a BTH but no icrc layer, frame is sent without a trailer")
		case err != nil:
			return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
		default:
			logger.Debugf("installed iCRC 0x%08x", v)
		}
		// The UDP checksum covers the trailer, so it has to be redone.
		if err := p.Fix(); err != nil {
			return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
		}
	}

	data, err := p.Bytes()
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.Name, err)
	}

	opcode := "none"
	if bth := p.BTH(); bth != nil {
		opcode = bth.Opcode.String()
	}
	metrics.FramesCraftedTotal.WithLabelValues(tpl.Name, opcode).Inc()
	logger.WithFields(map[string]interface{}{"len": len(data), "opcode": opcode}).Debug("frame crafted")

	return &Frame{Name: tpl.Name, Packet: p, Data: data}, nil
}

// BuildAll crafts every template in order.
func BuildAll(tpls []*config.PacketTemplate, logger log.Logger) ([]*Frame, error) {
	frames := make([]*Frame, 0, len(tpls))
	for _, tpl := range tpls {
		f, err := Build(tpl, logger)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// setECN writes the codepoint into the low two bits of every IP header's
// traffic class.
func setECN(p *roce.Packet, ecn uint8) {
	for _, l := range p.Layers() {
		switch ip := l.(type) {
		case *layers.IPv4:
			ip.TOS = ip.TOS&^0x03 | ecn
		case *layers.IPv6:
			ip.TrafficClass = ip.TrafficClass&^0x03 | ecn
		}
	}
}
