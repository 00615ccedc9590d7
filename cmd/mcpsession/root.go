package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/viant/mcpsession"
	"github.com/viant/mcpsession/client"
	"github.com/viant/mcpsession/internal/config"
	"github.com/viant/mcpsession/registry"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

// errToolFailed is returned when a tool reports isError.
var errToolFailed = errors.New("tool reported an error")

type globalFlags struct {
	configPath string
	baseURL    string
	path       string
	prefix     string
	timeout    time.Duration
	verbose    bool
}

// app carries what every subcommand needs once flags and config are resolved.
type app struct {
	flags    globalFlags
	config   *config.Config
	logger   *slog.Logger
	registry *registry.Registry
	closers  []io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "mcpsession",
		Short: "Negotiate an MCP session over SSE and call it over HTTP",
		Long: `mcpsession opens a Server-Sent-Events stream, waits for the server to announce
a session endpoint and then exchanges JSON-RPC messages with that endpoint.

Settings come from --config (YAML), MCPSESSION_* environment variables and flags,
in increasing priority.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.flags.configPath, "config", "c", "", "Path to a YAML config file")
	flags.StringVar(&a.flags.baseURL, "base", "", "Server base URL, e.g. http://localhost:5678")
	flags.StringVar(&a.flags.path, "path", "", "Event stream path, e.g. /sse (default: discover)")
	flags.StringVar(&a.flags.prefix, "prefix", "", "Endpoint announcement prefix (default: /mcp)")
	flags.DurationVar(&a.flags.timeout, "timeout", 0, "Per-call timeout (default: 30s)")
	flags.BoolVarP(&a.flags.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newProbeCmd(a), newToolsCmd(a), newCallCmd(a), newSessionsCmd(a))
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.flags.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("base") {
		cfg.BaseURL = a.flags.baseURL
	}
	if flags.Changed("path") {
		cfg.SessionPath = a.flags.path
	}
	if flags.Changed("prefix") {
		cfg.EndpointPrefix = a.flags.prefix
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = a.flags.timeout
	}
	if a.flags.verbose {
		cfg.Log.Level = "debug"
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.config = cfg
	if a.logger, err = newLogger(cmd.ErrOrStderr(), cfg); err != nil {
		return err
	}
	adapter := mcpsession.NewSlogLogger(a.logger)
	clientOptions := []client.Option{client.WithLogger(adapter)}
	if a.flags.verbose {
		clientOptions = append(clientOptions, client.WithListener(a.logFrame))
	}
	options, rdb := cfg.RegistryOptions(clientOptions...)
	if rdb != nil {
		a.closers = append(a.closers, rdb)
	}
	a.registry = registry.New(append(options, registry.WithLogger(adapter))...)
	return nil
}

func (a *app) logFrame(message *mcpsession.Message) {
	a.logger.Debug("frame", "direction", message.Direction, "type", message.Type, "method", message.Method())
}

func (a *app) teardown(ctx context.Context) error {
	if a.registry == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.registry.Close(ctx)
	for _, closer := range a.closers {
		_ = closer.Close()
	}
	return err
}

// withSession runs fn against an initialized session for the configured server, then closes it.
func (a *app) withSession(ctx context.Context, fn func(ctx context.Context, session *client.Session) error) (err error) {
	defer func() {
		if closeErr := a.teardown(ctx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	target := registry.Target{BaseURL: a.config.BaseURL, SessionPath: a.config.SessionPath}
	a.logger.Debug("opening session", "base", target.BaseURL, "path", target.SessionPath)
	session, err := a.registry.Get(ctx, target.BaseURL+target.SessionPath, target)
	if err != nil {
		return err
	}
	a.logger.Debug("session ready", "endpoint", session.EndpointURL(), "server", session.ServerInfo().ServerInfo.Name)
	return fn(ctx, session)
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
