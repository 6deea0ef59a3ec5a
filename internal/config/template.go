package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/rocev2/internal/core"
)

// PacketTemplate describes one frame to craft, outermost layer first.
//
//	name: cnp
//	ecn: ce
//	layers:
//	  - type: ether
//	    fields: {src: "00:11:22:33:44:55", dst: "aa:bb:cc:dd:ee:ff"}
//	  - type: ipv4
//	    fields: {src: 22.22.22.7, dst: 10.11.12.13, tos: 136, ttl: 32}
//	  - type: udp
//	    fields: {sport: 56238}
//	  - type: bth
//	    fields: {opcode: RoCEv2_CNP, pkey: 0xffff, dest_qp: 0xd2}
//	  - type: cnp
//	  - type: icrc
type PacketTemplate struct {
	Name   string          `yaml:"name"`
	ECN    string          `yaml:"ecn,omitempty"`
	Layers []LayerTemplate `yaml:"layers"`
}

// LayerTemplate is one layer of a template. Fields are decoded by the crafter
// according to Type.
type LayerTemplate struct {
	Type   string         `yaml:"type"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// Layer type names accepted in templates.
const (
	LayerEther     = "ether"
	LayerDot1Q     = "dot1q"
	LayerIPv4      = "ipv4"
	LayerIPv6      = "ipv6"
	LayerUDP       = "udp"
	LayerBTH       = "bth"
	LayerRETH      = "reth"
	LayerCNP       = "cnp"
	LayerData16    = "data16"
	LayerPayload   = "payload"
	LayerICRC      = "icrc"
	LayerIXIAFixed = "ixia_fixed"
	LayerIXIAFloat = "ixia_float"
)

var knownLayers = map[string]bool{
	LayerEther: true, LayerDot1Q: true, LayerIPv4: true, LayerIPv6: true, LayerUDP: true,
	LayerBTH: true, LayerRETH: true, LayerCNP: true, LayerData16: true, LayerPayload: true,
	LayerICRC: true, LayerIXIAFixed: true, LayerIXIAFloat: true,
}

// ECN codepoints carried in the low two bits of the IP TOS / traffic class.
const (
	ECNNotECT uint8 = 0
	ECNECT1   uint8 = 1
	ECNECT0   uint8 = 2
	ECNCE     uint8 = 3
)

// ParseECN resolves an ECN name (not-ect, ect0, ect1, ce) or a number 0-3.
// The empty string means "leave the TOS as the template sets it" and is
// reported with ok=false.
func ParseECN(s string) (ecn uint8, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, false, nil
	case "not-ect", "non-ect":
		return ECNNotECT, true, nil
	case "ect1", "ect(1)":
		return ECNECT1, true, nil
	case "ect0", "ect(0)":
		return ECNECT0, true, nil
	case "ce":
		return ECNCE, true, nil
	}
	n, perr := strconv.ParseUint(s, 0, 8)
	if perr != nil || n > 3 {
		return 0, false, fmt.Errorf("%w: ecn %q (must be not-ect/ect0/ect1/ce or 0-3)", core.ErrTemplateInvalid, s)
	}
	return uint8(n), true, nil
}

// ParseTemplate decodes a YAML template and validates it. Unknown top-level
// keys are rejected.
func ParseTemplate(data []byte) (*PacketTemplate, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var tpl PacketTemplate
	if err := dec.Decode(&tpl); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty template", core.ErrTemplateInvalid)
		}
		return nil, fmt.Errorf("%w: %v", core.ErrTemplateInvalid, err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// LoadTemplate reads and parses a template file.
func LoadTemplate(path string) (*PacketTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	tpl, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	if tpl.Name == "" {
		tpl.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return tpl, nil
}

// Marshal encodes the template back to YAML.
func (t *PacketTemplate) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}

// Validate checks the layer list. Field values are checked when the packet
// is crafted.
func (t *PacketTemplate) Validate() error {
	if len(t.Layers) == 0 {
		return fmt.Errorf("%w: no layers", core.ErrTemplateInvalid)
	}
	if _, _, err := ParseECN(t.ECN); err != nil {
		return err
	}
	for i, l := range t.Layers {
		if !knownLayers[l.Type] {
			return fmt.Errorf("%w: layer %d: %w %q", core.ErrTemplateInvalid, i, core.ErrUnknownLayer, l.Type)
		}
		if l.Type == LayerICRC && i != len(t.Layers)-1 {
			return fmt.Errorf("%w: layer %d: icrc must be the last layer", core.ErrTemplateInvalid, i)
		}
	}
	return nil
}
