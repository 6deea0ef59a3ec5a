package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/craft"
	"firestige.xyz/rocev2/internal/log"
	"firestige.xyz/rocev2/internal/sink/console"
	"firestige.xyz/rocev2/internal/sink/pcap"
)

var craftCmd = &cobra.Command{
	Use:   "craft",
	Short: "Build frames from templates",
	Long: `Build one frame per template, install its iCRC and print a summary and the
frame bytes in hex. With -w the frames are also written to a pcap file.

Examples:
  rocev2 craft -f cnp.yaml
  rocev2 craft -f cnp.yaml -f write.yaml -w out.pcap`,
	Run: func(cmd *cobra.Command, args []string) {
		_, stop, err := setup(cmd, nil)
		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		defer stop()

		if err := runCraft(craftFiles, craftOutput, os.Stdout); err != nil {
			exitWithError("craft failed", err)
		}
	},
}

var (
	craftFiles  []string
	craftOutput string
)

func init() {
	craftCmd.Flags().StringSliceVarP(&craftFiles, "file", "f", nil,
		"packet template file, repeatable (required)")
	craftCmd.Flags().StringVarP(&craftOutput, "write", "w", "",
		"write the frames to this pcap file")
	craftCmd.MarkFlagRequired("file")
}

// loadFrames parses and crafts every template file in order.
func loadFrames(paths []string) ([]*craft.Frame, error) {
	tpls := make([]*config.PacketTemplate, 0, len(paths))
	for _, p := range paths {
		tpl, err := config.LoadTemplate(p)
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, tpl)
	}
	return craft.BuildAll(tpls, log.GetLogger())
}

func runCraft(paths []string, pcapPath string, out io.Writer) error {
	frames, err := loadFrames(paths)
	if err != nil {
		return err
	}

	hex := console.NewSink(out)
	for _, f := range frames {
		fmt.Fprintf(out, "%s: %s\n", f.Name, f.Packet)
		if err := hex.Send(f.Data); err != nil {
			return err
		}
	}

	if pcapPath == "" {
		return nil
	}
	w, err := pcap.Create(pcapPath)
	if err != nil {
		return err
	}
	for _, f := range frames {
		if err := w.Send(f.Data); err != nil {
			w.Close()
			return fmt.Errorf("failed to write %s: %w", pcapPath, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %d frame(s) to %s\n", len(frames), pcapPath)
	return nil
}
