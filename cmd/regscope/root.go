package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/scottbass3/regscope/internal/config"
	"github.com/scottbass3/regscope/internal/kv"
	"github.com/scottbass3/regscope/internal/logging"
	"github.com/scottbass3/regscope/internal/registry"
	"github.com/scottbass3/regscope/internal/secrets"
)

// Store constructors, replaced in tests.
var (
	openStateStore = func(dir string) (kv.Store, error) {
		return kv.NewStarskeyStore(dir)
	}
	openSecretStore = func(path string) secrets.Store {
		return secrets.NewFileStore(path)
	}
)

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath string
	debug      bool

	cfg      config.Config
	logger   *log.Logger
	state    kv.Store
	provider *registry.Provider
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{in: in, out: out, errOut: errOut}
}

func newRootCmd(a *app) *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:   "regscope",
		Short: "Browse and prune Docker Registry V2 repositories",
		Long: `regscope connects to Docker Registry HTTP API V2 services, lists their
repositories, tags and manifests, and deletes tags or whole repositories.

Registries that do not expose a catalog can be connected in monolith mode with
an explicit list of repositories.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWith(v, a.configPath)
			if err != nil {
				return err
			}
			return a.init(cfg)
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/regscope/config.yaml)")
	flags.BoolVar(&a.debug, "debug", false, "log every registry request")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newRegistriesCmd(a),
		newConnectCmd(a),
		newDisconnectCmd(a),
		newReposCmd(a),
		newTagsCmd(a),
		newManifestCmd(a),
		newDeleteTagCmd(a),
		newDeleteRepoCmd(a),
		newMonolithCmd(a),
	)
	return root
}

func (a *app) init(cfg config.Config) error {
	a.cfg = cfg
	a.logger = logging.New(a.errOut, cfg.LogLevel)

	var requestLogger registry.RequestLogger
	if a.debug {
		a.logger.SetLevel(log.DebugLevel)
		requestLogger = registry.LogRequests(a.logger)
	}

	state, err := openStateStore(cfg.DataDir)
	if err != nil {
		return err
	}
	a.state = state

	provider, err := registry.NewProvider(registry.Options{
		ProviderID:      cfg.ProviderID,
		State:           state,
		Secrets:         openSecretStore(cfg.SecretsFile),
		HTTPClient:      &http.Client{Timeout: cfg.RequestTimeout},
		Logger:          a.logger,
		RequestLogger:   requestLogger,
		MaxConcurrency:  cfg.MaxConcurrency,
		RetryChallenges: cfg.RetryChallenges,
	})
	if err != nil {
		return err
	}
	a.provider = provider
	return nil
}

func (a *app) close() error {
	if a.state == nil {
		return nil
	}
	err := a.state.Close()
	a.state = nil
	if err != nil {
		return fmt.Errorf("close state store: %w", err)
	}
	return nil
}
