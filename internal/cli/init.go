package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/oilsync/internal/paths"
	"github.com/mesh-intelligence/oilsync/pkg/oilsync"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the config file and the local store",
		Long: "Create the configuration directory and a default config.yaml if missing,\n" +
			"then create the data directory and the database schema.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, a)
		},
	}
}

func runInit(cmd *cobra.Command, a *app) error {
	if err := os.MkdirAll(a.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	configPath := paths.ConfigFile(a.cfg.ConfigDir)
	created, err := writeConfigIfMissing(configPath, defaultConfigFile(a.cfg.APIURL, a.cfg.DataDir, a.cfg.OwnerID))
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	err = a.withEngine(func(eng *oilsync.Engine) error {
		// Touch every table group so the schema exists before first use.
		if _, err := eng.Forms().Counts(0); err != nil {
			return err
		}
		if _, err := eng.Payments().DirtyCount(0); err != nil {
			return err
		}
		return eng.Caches().Clear(0)
	})
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	result := map[string]any{
		"config_file":    configPath,
		"config_created": created,
		"data_dir":       a.cfg.DataDir,
	}
	return a.print(cmd, result, func(w io.Writer) {
		fmt.Fprintf(w, "config: %s\n", configPath)
		fmt.Fprintf(w, "data:   %s\n", a.cfg.DataDir)
		fmt.Fprintln(w, "oilsync initialized")
	})
}
