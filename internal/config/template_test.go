package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rocev2/internal/core"
)

const cnpTemplate = `
name: cnp
ecn: ce
layers:
  - type: ether
    fields: {src: "00:11:22:33:44:55", dst: "aa:bb:cc:dd:ee:ff"}
  - type: ipv4
    fields: {src: 22.22.22.7, dst: 10.11.12.13, tos: 136, ttl: 32, id: 0x98c6, flags: DF}
  - type: udp
    fields: {sport: 56238, dport: 4791}
  - type: bth
    fields: {opcode: RoCEv2_CNP, pkey: 0xffff, dest_qp: 0xd2}
  - type: cnp
  - type: icrc
`

func TestParseTemplate(t *testing.T) {
	tpl, err := ParseTemplate([]byte(cnpTemplate))
	require.NoError(t, err)
	assert.Equal(t, "cnp", tpl.Name)
	assert.Equal(t, "ce", tpl.ECN)
	require.Len(t, tpl.Layers, 6)
	assert.Equal(t, LayerBTH, tpl.Layers[3].Type)
	assert.Equal(t, "RoCEv2_CNP", tpl.Layers[3].Fields["opcode"])
	assert.Equal(t, 0xd2, tpl.Layers[3].Fields["dest_qp"])
	assert.Empty(t, tpl.Layers[4].Fields)
}

func TestTemplateRoundTrip(t *testing.T) {
	tpl, err := ParseTemplate([]byte(cnpTemplate))
	require.NoError(t, err)
	out, err := tpl.Marshal()
	require.NoError(t, err)

	again, err := ParseTemplate(out)
	require.NoError(t, err)
	assert.Equal(t, tpl, again)
}

func TestParseTemplateInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", ""},
		{"no layers", "name: x\nlayers: []\n"},
		{"unknown layer", "layers:\n  - type: tcp\n"},
		{"icrc not last", "layers:\n  - type: icrc\n  - type: cnp\n"},
		{"bad ecn", "ecn: ect2\nlayers:\n  - type: cnp\n"},
		{"unknown key", "name: x\ncolour: red\nlayers:\n  - type: cnp\n"},
		{"not yaml", "layers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTemplate([]byte(tt.yaml))
			assert.ErrorIs(t, err, core.ErrTemplateInvalid)
		})
	}

	_, err := ParseTemplate([]byte("layers:\n  - type: tcp\n"))
	assert.ErrorIs(t, err, core.ErrUnknownLayer)
}

func TestParseECN(t *testing.T) {
	tests := []struct {
		in   string
		want uint8
		ok   bool
	}{
		{"", 0, false},
		{"not-ect", ECNNotECT, true},
		{"ECT0", ECNECT0, true},
		{"ect1", ECNECT1, true},
		{"ce", ECNCE, true},
		{"3", 3, true},
	}
	for _, tt := range tests {
		got, ok, err := ParseECN(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, _, err := ParseECN("4")
	assert.ErrorIs(t, err, core.ErrTemplateInvalid)
}

func TestLoadTemplateNamesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "write_only.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layers:\n  - type: bth\n  - type: reth\n  - type: payload\n  - type: icrc\n"), 0644))

	tpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "write_only", tpl.Name)

	_, err = LoadTemplate(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
