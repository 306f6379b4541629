// Package cli implements the galaxyprobe command line.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/me/galaxyprobe/internal/config"
	"github.com/me/galaxyprobe/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagStatusURL string

	cfg    config.ProbeConfig
	logger *slog.Logger
)

// defaultStatusURL returns the status server URL, checking
// GALAXYPROBE_STATUS_URL first.
func defaultStatusURL() string {
	if s := os.Getenv(config.EnvPrefix + "_STATUS_URL"); s != "" {
		return s
	}
	return "http://localhost:8090"
}

// statusClient returns a client for the status server named by --status-url.
func statusClient() *Client {
	return NewClient(flagStatusURL, logger)
}

// persistentFlags maps config keys to the flags that override them.
var persistentFlags = []struct {
	key, flag, usage string
}{
	{"url", "url", "Galaxy server URL"},
	{"api_key", "api-key", "Galaxy API key"},
	{"history", "history", "History name, created when missing"},
	{"journal_dir", "journal-dir", "Directory for *_incorrect_combination.json files"},
	{"db", "db", "Run ledger path (empty disables the ledger)"},
	{"catalog", "catalog", "Data table catalog file (YAML or JSON)"},
	{"filter", "filter", "JavaScript expression a combination must satisfy"},
	{"log_level", "log-level", "Log level (debug, info, warn, error)"},
	{"log_format", "log-format", "Log format (text, json)"},
	{"poll_interval", "poll-interval", "Wait between job state checks"},
	{"poll_timeout", "poll-timeout", "Give up following a job after this long (0 waits forever)"},
}

// NewRootCmd creates the root cobra command for the galaxyprobe CLI.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	defaults := config.DefaultProbeConfig()

	root := &cobra.Command{
		Use:   "galaxyprobe",
		Short: "galaxyprobe exercises Galaxy tools across their data table options",
		Long: `galaxyprobe watches a Galaxy history, and for every tool whose parameters
draw options from server data tables, runs the tool once per combination of
those options. Combinations that fail are journaled per tool.

Configuration is read from --config, then GALAXYPROBE_* environment variables,
then flags.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(v, flagConfig)
			if err != nil {
				return err
			}
			if flagDebug {
				loaded.LogLevel = "debug"
			}
			cfg = loaded
			logger = logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Config file (YAML)")
	pf.BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	pf.StringVar(&flagStatusURL, "status-url", defaultStatusURL(), "Status server URL for runs and status (or GALAXYPROBE_STATUS_URL env)")
	pf.String("url", defaults.URL, "")
	pf.String("api-key", "", "")
	pf.String("history", defaults.History, "")
	pf.String("journal-dir", defaults.JournalDir, "")
	pf.String("db", defaults.DBPath, "")
	pf.String("catalog", "", "")
	pf.String("filter", "", "")
	pf.String("log-level", defaults.LogLevel, "")
	pf.String("log-format", defaults.LogFormat, "")
	pf.Duration("poll-interval", defaults.PollInterval, "")
	pf.Duration("poll-timeout", defaults.PollTimeout, "")
	for _, f := range persistentFlags {
		fl := pf.Lookup(f.flag)
		fl.Usage = f.usage
		_ = v.BindPFlag(f.key, fl)
	}

	root.AddCommand(
		newWatchCmd(v),
		newProbeCmd(v),
		newCombosCmd(),
		newJournalCmd(),
		newServeCmd(v),
		newRunsCmd(),
		newStatusCmd(),
	)

	return root
}
