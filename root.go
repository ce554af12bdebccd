package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/fts-tools/ftsctl/internal/credstore"
	"github.com/fts-tools/ftsctl/internal/history"
	"github.com/fts-tools/ftsctl/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// passwordEnvVar supplies the store password non-interactively, for
// scripted use where no terminal is attached.
const passwordEnvVar = "FTSCTL_PASSWORD"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagCustomer   string
	flagWorkers    int
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout is the default timeout for control-plane requests.
// Pre-signed transfers of large files get their own client without it.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ftsctl",
		Short:   "File transfer service CLI client",
		Long:    "A CLI client for OAuth2-secured bulk file transfer services, with encrypted per-customer credentials.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "credential store path")
	cmd.PersistentFlags().StringVarP(&flagCustomer, "customer", "c", "", "customer profile to operate as")
	cmd.PersistentFlags().IntVar(&flagWorkers, "workers", 4, "max concurrent per-file transfers")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newCustomersCmd())
	cmd.AddCommand(newPrefixesCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newMvCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newHistoryCmd())

	return cmd
}

// buildLogger creates an slog.Logger configured by the CLI flags.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// credentialsPath resolves the credential store location: --config wins,
// otherwise the platform default under the user config dir.
func credentialsPath() string {
	if flagConfigPath != "" {
		return flagConfigPath
	}

	return credstore.DefaultCredentialsPath()
}

// readStorePassword obtains the store password: from the environment for
// scripts, from a hidden terminal prompt when attached to a TTY, or from
// a piped stdin line otherwise. The password never appears in logs.
func readStorePassword() ([]byte, error) {
	if pw := os.Getenv(passwordEnvVar); pw != "" {
		return []byte(pw), nil
	}

	if isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprint(os.Stderr, "Store password: ")

		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)

		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}

		return pw, nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return nil, fmt.Errorf("reading password from stdin: %w", err)
	}

	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// openStore opens the credential store, prompting for the password.
// A wrong password fails here via the key check, before any command runs.
func openStore(logger *slog.Logger) (*credstore.Store, error) {
	password, err := readStorePassword()
	if err != nil {
		return nil, err
	}

	store, err := credstore.Open(credentialsPath(), password, logger)
	if err != nil {
		return nil, err
	}

	return store, nil
}

// openSession builds the full session: credential store, transfer log,
// and token cache. The caller must Close the returned cleanup.
func openSession(logger *slog.Logger) (*session.Session, func(), error) {
	store, err := openStore(logger)
	if err != nil {
		return nil, nil, err
	}

	dataDir := credstore.DefaultDataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data directory: %w", err)
	}

	log, err := history.Open(filepath.Join(dataDir, "history.db"), logger)
	if err != nil {
		return nil, nil, err
	}

	sess := session.New(store, log, logger, session.Options{
		HTTPClient: defaultHTTPClient(),
		Workers:    flagWorkers,
	})

	cleanup := func() {
		if err := log.Close(); err != nil {
			logger.Warn("closing transfer log", "error", err)
		}
	}

	return sess, cleanup, nil
}

// selectedSession opens a session and selects the --customer profile,
// which every transfer command requires.
func selectedSession(logger *slog.Logger) (*session.Session, func(), error) {
	if flagCustomer == "" {
		return nil, nil, fmt.Errorf("--customer is required")
	}

	sess, cleanup, err := openSession(logger)
	if err != nil {
		return nil, nil, err
	}

	if err := sess.SelectCustomer(flagCustomer); err != nil {
		cleanup()
		return nil, nil, err
	}

	return sess, cleanup, nil
}
