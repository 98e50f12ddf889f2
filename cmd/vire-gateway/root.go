package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFiles []string
	peerURL     string
	timeout     float64
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "vire-gateway",
		Short: "Gateway to a remote MCP tool server for Vietnamese market data",
		Long: `vire-gateway holds a session with a remote MCP tool server, discovers its
capabilities and republishes them as local operations over MCP, REST and
this command line.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringArrayVarP(&opts.configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times)")
	flags.StringVar(&opts.peerURL, "peer-url", "", "Remote tool server URL (overrides config)")
	flags.Float64Var(&opts.timeout, "timeout", 0, "Peer request timeout in seconds (overrides config)")

	cmd.AddCommand(
		newServeCmd(opts),
		newToolsCmd(opts),
		newCallCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig resolves config files, applies runtime overrides and validates.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	files := o.configFiles
	if len(files) == 0 {
		for _, path := range configSearchPaths() {
			if _, err := os.Stat(path); err == nil {
				files = append(files, path)
				break
			}
		}
	}

	cfg, err := config.LoadFromFiles(files...)
	if err != nil {
		return nil, err
	}
	config.ApplyPeerOverrides(cfg, o.peerURL, o.timeout)

	if issues := cfg.Validate(); len(issues) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  - %s", strings.Join(issues, "\n  - "))
	}
	return cfg, nil
}

// configSearchPaths returns config files to auto-discover (first match wins).
// Binary-relative paths are tried first, with CWD and Docker fallbacks after.
func configSearchPaths() []string {
	candidates := []string{
		"vire-gateway.toml",
		"config/vire-gateway.toml",
		"mcp_config.yaml",
		"docker/vire-gateway.toml",
	}

	exe, err := os.Executable()
	if err != nil {
		return candidates
	}
	binDir := filepath.Dir(exe)

	paths := []string{
		filepath.Join(binDir, "vire-gateway.toml"),
		filepath.Join(binDir, "config", "vire-gateway.toml"),
	}
	paths = append(paths, candidates...)

	seen := make(map[string]bool, len(paths))
	deduped := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		deduped = append(deduped, p)
	}
	return deduped
}

// setupLogger creates an arbor logger based on config.
func setupLogger(cfg *config.Config) *common.Logger {
	return common.NewLoggerFromConfig(cfg.Logging)
}
