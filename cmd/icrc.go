package cmd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/spf13/cobra"

	"firestige.xyz/rocev2/pkg/icrc"
	"firestige.xyz/rocev2/pkg/roce"
)

var icrcCmd = &cobra.Command{
	Use:   "icrc [flags] HEX",
	Short: "Compute the iCRC of one frame",
	Long: `Decode one hex encoded frame, recompute its iCRC and compare it with the
stored trailer. Spaces and colons in HEX are ignored.

Examples:
  rocev2 icrc 0011223344550a0b0c0d0e0f0800...
  rocev2 icrc --first ipv4 --image 4588003c...`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, stop, err := setup(cmd, nil)
		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		defer stop()

		if err := runICRC(args[0], icrcFirst, icrcImage, os.Stdout); err != nil {
			exitWithError("icrc failed", err)
		}
	},
}

var (
	icrcFirst string
	icrcImage bool
)

func init() {
	icrcCmd.Flags().StringVar(&icrcFirst, "first", "ether", "first layer of the frame: ether/ipv4/ipv6")
	icrcCmd.Flags().BoolVar(&icrcImage, "image", false, "also print the normalized bytes the iCRC covers")
}

var firstLayers = map[string]gopacket.LayerType{
	"ether": layers.LayerTypeEthernet,
	"ipv4":  layers.LayerTypeIPv4,
	"ipv6":  layers.LayerTypeIPv6,
}

func runICRC(in, first string, showImage bool, out io.Writer) error {
	lt, ok := firstLayers[first]
	if !ok {
		return fmt.Errorf("unknown first layer %q (must be ether/ipv4/ipv6)", first)
	}
	frame, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(in))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	p, err := roce.NewParser(lt, nil).Parse(frame)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, p)

	computed, im, err := icrc.Compute(p)
	if err != nil {
		return err
	}
	if showImage {
		fmt.Fprintf(out, "image:    %s\n", roce.Hex(im.Bytes))
	}
	fmt.Fprintf(out, "computed: 0x%08x\n", computed)
	if errors.Is(im.Warning(), icrc.ErrMissingTrailer) {
		fmt.Fprintln(out, "stored:   none")
		return nil
	}
	stored := p.ICRC().Value
	status := "valid"
	if stored != computed {
		status = "invalid"
	}
	fmt.Fprintf(out, "stored:   0x%08x %s\n", stored, status)
	return nil
}
