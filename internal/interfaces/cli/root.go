// Package cli implements the molsearch command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/molecule-search/internal/config"
	"github.com/turtacn/molecule-search/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/molecule-search/pkg/client"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the persistent flags.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	ServerAddr string
	Timeout    time.Duration
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "molsearch",
		Short:         "Molecule Search chat backend",
		Long:          "molsearch serves the Molecule Search API, manages its database schema and\ndocument metadata, and talks to a running server from the terminal.",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: environment only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&opts.ServerAddr, "server", "", "API server address for client commands (default: http://localhost:<server.port>)")
	pf.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "request timeout for client commands")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newDocsCmd(opts),
		newAuditCmd(opts),
		newChatCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI with os.Args.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		PrintError(root, err)
		return err
	}
	return nil
}

// loadConfig reads --config or the environment.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.LoadOrEnv(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Client-side commands log to stderr so
// their stdout stays clean.
func newLogger(cfg config.LogConfig, stderrOnly bool) (logging.Logger, error) {
	lc := logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
	}
	if stderrOnly {
		lc.Format = "console"
		lc.OutputPaths = []string{"stderr"}
	}
	return logging.NewLogger(lc)
}

// apiClient builds an SDK client for --server, falling back to the port in
// the environment's server config.
func apiClient(opts *RootOptions) (*client.Client, error) {
	addr := opts.ServerAddr
	if addr == "" {
		port := config.DefaultServerPort
		if cfg, err := config.LoadOrEnv(opts.ConfigPath); err == nil {
			port = cfg.Server.Port
		}
		addr = fmt.Sprintf("http://localhost:%d", port)
	}
	return client.NewClient(addr,
		client.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		client.WithAPIKey(os.Getenv("MOLSEARCH_API_KEY")),
		client.WithUserAgent("molsearch-cli/"+Version),
	)
}

// signalContext is replaced in tests.
var signalContext = func(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printJSON(cmd *cobra.Command, data interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintError writes err to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			if i == len(headers)-1 {
				sb.WriteString(val)
			} else {
				sb.WriteString(padRight(val, colWidths[i]))
			}
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
