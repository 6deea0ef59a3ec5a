package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/core"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/source"
	"firestige.xyz/rocev2/internal/source/afpacket"
	"firestige.xyz/rocev2/internal/source/file"
	"firestige.xyz/rocev2/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the iCRC of captured frames",
	Long: `Read frames from a pcap/pcapng file or capture them live from an interface,
recompute the iCRC of every RoCEv2 frame and compare it with the trailer.
The command fails when any RoCEv2 frame is invalid or has no trailer.

Examples:
  rocev2 verify -r capture.pcap
  rocev2 verify -i eth0 --limit 1000
  rocev2 verify -r capture.pcapng --port 4792 -q`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, stop, err := setup(cmd, map[string]string{
			"capture.interface": "interface",
			"capture.udp_port":  "port",
		})
		if err != nil {
			exitWithError("failed to load configuration", err)
		}

		rep, err := verifyCapture(cfg.Capture)
		stop()
		if err != nil {
			exitWithError("verify failed", err)
		}
		if !rep.OK() {
			exitWithError(fmt.Sprintf("%d invalid, %d without trailer, %d unreadable",
				rep.Invalid, rep.MissingTrailer, rep.Errors), nil)
		}
	},
}

var (
	verifyFile  string
	verifyLimit int
	verifyQuiet bool
)

func init() {
	verifyCmd.Flags().StringVarP(&verifyFile, "read", "r", "", "pcap or pcapng file to read")
	verifyCmd.Flags().StringP("interface", "i", "", "network interface to capture on")
	verifyCmd.Flags().IntVar(&verifyLimit, "limit", 0, "stop after this many frames, 0 for no limit")
	verifyCmd.Flags().Int("port", 4791, "RoCEv2 UDP destination port")
	verifyCmd.Flags().BoolVarP(&verifyQuiet, "quiet", "q", false, "print only the summary")
	verifyCmd.MarkFlagsMutuallyExclusive("read", "interface")
}

func openSource(cfg config.CaptureConfig, path string) (source.Source, string, error) {
	if path != "" {
		s, err := file.Open(path)
		if err != nil {
			return nil, "", err
		}
		return s, file.Name, nil
	}
	if cfg.Interface == "" {
		return nil, "", fmt.Errorf("%w: use -r or -i", core.ErrInterfaceRequired)
	}
	s, err := afpacket.Open(cfg)
	if err != nil {
		return nil, "", err
	}
	return s, afpacket.Name, nil
}

func verifyCapture(cfg config.CaptureConfig) (*verify.Report, error) {
	src, name, err := openSource(cfg, verifyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	ctx, cancel := signalContext()
	defer cancel()
	return runVerify(ctx, src, name, uint16(cfg.UDPPort), verifyLimit, verifyQuiet, os.Stdout)
}

// runVerify checks every frame of src and closes it before returning.
func runVerify(ctx context.Context, src source.Source, name string, port uint16, limit int, quiet bool, out io.Writer) (*verify.Report, error) {
	defer src.Close()
	first, err := verify.FirstLayer(src.LinkType())
	if err != nil {
		return nil, err
	}
	c, err := verify.NewChecker(first, port, log.GetLogger())
	if err != nil {
		return nil, err
	}

	var each func(verify.Result)
	if !quiet {
		each = func(r verify.Result) { fmt.Fprintln(out, r) }
	}
	rep, err := c.Run(ctx, src, name, limit, each)
	if rep != nil {
		fmt.Fprintln(out, rep)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return rep, err
	}
	return rep, nil
}
