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
	"firestige.xyz/rocev2/internal/sink/afpacket"
	"firestige.xyz/rocev2/internal/sink/pcap"
	"firestige.xyz/rocev2/internal/transmit"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send crafted frames at a fixed rate",
	Long: `Craft frames from templates and send them on a network interface through
an AF_PACKET socket, or into a pcap file with -w. The frames are sent in
order, --count times over, at most --pps frames per second.

Examples:
  rocev2 send -f cnp.yaml -i eth0
  rocev2 send -f cnp.yaml -i eth0 --count 0 --pps 1000   # until interrupted
  rocev2 send -f cnp.yaml -w out.pcap --count 10`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, stop, err := setup(cmd, map[string]string{
			"transmit.interface": "interface",
			"transmit.count":     "count",
			"transmit.pps":       "pps",
		})
		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		defer stop()

		frames, err := loadFrames(sendFiles)
		if err != nil {
			exitWithError("failed to craft frames", err)
		}
		data := make([][]byte, len(frames))
		for i, f := range frames {
			data[i] = f.Data
		}

		sender, err := openSender(cfg.Transmit, sendOutput)
		if err != nil {
			exitWithError("failed to open sender", err)
		}

		ctx, cancel := signalContext()
		defer cancel()
		if err := runSend(ctx, sender, data, cfg.Transmit, os.Stdout); err != nil {
			exitWithError("send failed", err)
		}
	},
}

var (
	sendFiles  []string
	sendOutput string
)

func init() {
	sendCmd.Flags().StringSliceVarP(&sendFiles, "file", "f", nil,
		"packet template file, repeatable (required)")
	sendCmd.Flags().StringP("interface", "i", "", "network interface to send on")
	sendCmd.Flags().Int("count", 1, "passes over the frames, 0 sends until interrupted")
	sendCmd.Flags().Int("pps", 0, "frames per second, 0 sends as fast as possible")
	sendCmd.Flags().StringVarP(&sendOutput, "write", "w", "",
		"write into this pcap file instead of an interface")
	sendCmd.MarkFlagRequired("file")
}

func openSender(cfg config.TransmitConfig, pcapPath string) (transmit.Sender, error) {
	if pcapPath != "" {
		s, err := pcap.Create(pcapPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if cfg.Interface == "" {
		return nil, fmt.Errorf("%w: use -i or -w", core.ErrInterfaceRequired)
	}
	s, err := afpacket.NewSink(cfg.Interface)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func runSend(ctx context.Context, sender transmit.Sender, frames [][]byte, cfg config.TransmitConfig, out io.Writer) error {
	defer func() {
		if err := sender.Close(); err != nil {
			log.GetLogger().WithError(err).Warn("failed to close sender")
		}
	}()

	st, err := transmit.New(sender, cfg.PPS, log.GetLogger()).Run(ctx, frames, cfg.Count)
	fmt.Fprintf(out, "sent %d frame(s), %d failed, in %s\n", st.Sent, st.Failed, st.Elapsed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if st.Failed > 0 {
		return fmt.Errorf("%d frame(s) failed to send", st.Failed)
	}
	return nil
}
