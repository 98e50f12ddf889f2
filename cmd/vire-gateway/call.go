package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bobmcallan/vire-gateway/internal/app"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/spf13/cobra"
)

func newCallCmd(root *rootOptions) *cobra.Command {
	var (
		pairs   []string
		rawJSON string
	)

	cmd := &cobra.Command{
		Use:   "call <capability>",
		Short: "Invoke one capability and print its result",
		Example: `  vire-gateway call get_price_board --arg symbols='["VNM","FPT"]'
  vire-gateway call get_quote_history_price --json '{"symbol":"VNM","start_date":"2024-01-01"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callArgs, err := parseArguments(rawJSON, pairs)
			if err != nil {
				return err
			}

			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			application, err := app.New(cmd.Context(), cfg, setupLogger(cfg))
			if err != nil {
				return err
			}
			defer application.Close()

			res := application.Gateway.Call(cmd.Context(), args[0], callArgs)
			if err := printResult(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Failed() {
				return res.Err
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&pairs, "arg", nil, "Argument as key=value; JSON values are decoded (repeatable)")
	cmd.Flags().StringVar(&rawJSON, "json", "", "Arguments as a JSON object; --arg values override its keys")
	return cmd
}

// parseArguments merges a JSON object with key=value pairs. Values that
// parse as JSON (numbers, booleans, lists) keep their type; anything else
// is a string.
func parseArguments(rawJSON string, pairs []string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(rawJSON) != "" {
		if err := json.Unmarshal([]byte(rawJSON), &args); err != nil {
			return nil, fmt.Errorf("--json must be a JSON object: %w", err)
		}
		if args == nil {
			args = map[string]any{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--arg %q must be key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			args[key] = decoded
		} else {
			args[key] = value
		}
	}
	return args, nil
}

func printResult(w io.Writer, res gateway.Result) error {
	if s, ok := res.Value().(string); ok {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(res.Value())
}
