// Package cli implements the oilsync command-line interface.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/oilsync/internal/logging"
	"github.com/mesh-intelligence/oilsync/internal/netstate"
	"github.com/mesh-intelligence/oilsync/internal/paths"
	"github.com/mesh-intelligence/oilsync/internal/remote"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
	"github.com/mesh-intelligence/oilsync/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds the global flag values.
type rootFlags struct {
	configDir string
	dataDir   string
	apiURL    string
	ownerID   int64
	token     string
	logLevel  string
	jsonMode  bool
	offline   bool
}

// app is the state shared by every subcommand of one invocation.
type app struct {
	flags  rootFlags
	cfg    settings
	logger *zap.SugaredLogger
}

// NewRootCmd creates the top-level "oilsync" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{logger: logging.Nop()}
	root := &cobra.Command{
		Use:   "oilsync",
		Short: "Offline cache and sync for the oil-distribution API",
		Long: "oilsync keeps a local copy of vendor bills, payments and KPI screens,\n" +
			"queues oil purchases and vendor payments made offline, and replays\n" +
			"them against the API once it is reachable.",
		Version:       oilsync.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: per-user config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory holding oilsync.db")
	pf.StringVar(&a.flags.apiURL, "api-url", "", "API base URL")
	pf.Int64Var(&a.flags.ownerID, "owner", 0, "owner id of the signed-in user")
	pf.StringVar(&a.flags.token, "token", "", "bearer token")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&a.flags.jsonMode, "json", false, "output in JSON format")
	pf.BoolVar(&a.flags.offline, "offline", false, "never contact the API")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newStatusCmd(a),
		newQueueCmd(a),
		newSyncCmd(a),
		newRunCmd(a),
		newBillsCmd(a),
		newPaymentsCmd(a),
		newSummaryCmd(a),
		newWakaaladCmd(a),
		newPurgeCmd(a),
		newLogoutCmd(a),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oilsync:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// userError marks an error caused by the invocation rather than the system.
type userError struct{ err error }

func (e userError) Error() string { return e.err.Error() }
func (e userError) Unwrap() error { return e.err }

func userErrorf(format string, args ...any) error {
	return userError{fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ue userError
	var apiErr *remote.APIError
	switch {
	case errors.As(err, &ue):
		return exitUserError
	case errors.As(err, &apiErr) && apiErr.StatusCode < 500:
		return exitUserError
	case errors.Is(err, types.ErrOwnerRequired),
		errors.Is(err, types.ErrInvalidMode),
		errors.Is(err, types.ErrInvalidPayload),
		errors.Is(err, types.ErrInvalidAmount),
		errors.Is(err, types.ErrNotFound):
		return exitUserError
	default:
		return exitSysError
	}
}

func (a *app) load(cmd *cobra.Command) error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	a.cfg, err = loadSettings(configDir, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	a.logger = logging.New(a.cfg.LogLevel, logging.Format(a.cfg.LogFormat), cmd.ErrOrStderr()).Sugar()
	return nil
}

func (a *app) identity() types.Identity {
	return types.Identity{OwnerID: a.cfg.OwnerID, Token: a.cfg.Token}
}

// open attaches the engine. With --offline the API is never contacted.
func (a *app) open() (*oilsync.Engine, error) {
	opts := oilsync.Options{
		Store:   types.Config{DataDir: a.cfg.DataDir},
		APIURL:  a.cfg.APIURL,
		Timeout: a.cfg.RequestTimeout,
		Logger:  a.logger,
	}
	if a.flags.offline || a.cfg.APIURL == "" {
		opts.Conn = netstate.Static(false)
	}
	eng, err := oilsync.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return eng, nil
}

// withEngine opens the engine, runs fn and closes it.
func (a *app) withEngine(fn func(eng *oilsync.Engine) error) error {
	eng, err := a.open()
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			a.logger.Warnw("close store", "error", err)
		}
	}()
	return fn(eng)
}

// print writes v as JSON with --json, or calls text otherwise.
func (a *app) print(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	w := cmd.OutOrStdout()
	if a.flags.jsonMode {
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	text(w)
	return nil
}

func fmtID(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}
