package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/bobmcallan/vire-gateway/internal/app"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/spf13/cobra"
)

func newToolsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the capabilities published by the remote tool server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, setupLogger(cfg))
			if err != nil {
				return err
			}
			defer application.Close()

			ops := application.Gateway.Operations()
			if asJSON {
				return printDescriptorsJSON(cmd.OutOrStdout(), ops)
			}
			if application.Gateway.Degraded() {
				fmt.Fprintf(cmd.ErrOrStderr(), "peer %s unavailable, showing stub capabilities\n", application.Gateway.PeerURL())
			}
			return printDescriptors(cmd.OutOrStdout(), ops)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func printDescriptorsJSON(w io.Writer, ops []gateway.Operation) error {
	descs := make([]gateway.Descriptor, 0, len(ops))
	for _, op := range ops {
		descs = append(descs, op.Descriptor())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(descs)
}

// printDescriptors writes one line per capability: name(params) and the
// first line of its description. Required parameters are marked with *.
func printDescriptors(w io.Writer, ops []gateway.Operation) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, op := range ops {
		d := op.Descriptor()
		params := make([]string, 0, len(d.Parameters))
		for _, p := range d.Parameters {
			name := p.Name
			if p.Required {
				name += "*"
			}
			params = append(params, name+" "+string(p.Kind))
		}
		desc, _, _ := strings.Cut(strings.TrimSpace(d.Description), "\n")
		fmt.Fprintf(tw, "%s(%s)\t%s\n", d.Name, strings.Join(params, ", "), desc)
	}
	return tw.Flush()
}
