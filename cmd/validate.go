package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/rocev2/internal/config"
	"firestige.xyz/rocev2/internal/craft"
	"firestige.xyz/rocev2/internal/log"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate packet templates",
	Long: `Validate packet templates without sending anything. Each template is parsed
and crafted, so field values are checked as well as the layer list.

Examples:
  rocev2 validate -f cnp.yaml
  rocev2 validate -f cnp.yaml -f write.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		_, stop, err := setup(cmd, nil)
		if err != nil {
			exitWithError("failed to load configuration", err)
		}
		defer stop()

		if !runValidate(validateFiles, os.Stdout, os.Stderr) {
			os.Exit(1)
		}
	},
}

var validateFiles []string

func init() {
	validateCmd.Flags().StringSliceVarP(&validateFiles, "file", "f", nil,
		"packet template file to validate, repeatable (required)")
	validateCmd.MarkFlagRequired("file")
}

// runValidate reports every template and returns false if any is invalid.
func runValidate(paths []string, out, errOut io.Writer) bool {
	ok := true
	for _, p := range paths {
		tpl, err := config.LoadTemplate(p)
		if err == nil {
			var f *craft.Frame
			if f, err = craft.Build(tpl, log.GetLogger()); err == nil {
				fmt.Fprintf(out, "VALID: %s: template %q, %d layer(s), %d bytes\n",
					p, tpl.Name, len(tpl.Layers), len(f.Data))
				continue
			}
		}
		fmt.Fprintf(errOut, "INVALID: %s: %v\n", p, err)
		ok = false
	}
	return ok
}
