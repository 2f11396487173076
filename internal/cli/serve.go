package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/omnikey-app/omnikey/apps"
	"github.com/omnikey-app/omnikey/internal/config"
	"github.com/omnikey-app/omnikey/keys"
	"github.com/omnikey-app/omnikey/presets"
	"github.com/omnikey-app/omnikey/server"
	"github.com/omnikey-app/omnikey/store"
	"github.com/omnikey-app/omnikey/token"
	"github.com/omnikey-app/omnikey/usage"
	"github.com/omnikey-app/omnikey/users"
)

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default: first free port in the discovery range)")
	return cmd
}

func runServe(pinnedPort int) error {
	cfg := config.New()
	setupLogging(cfg)
	displayBanner(cfg.GetAppName())

	dataFolder := cfg.GetDataFolder()
	if err := os.MkdirAll(dataFolder, 0o755); err != nil {
		return errors.Wrap(err, "[runServe] create data folder")
	}

	secret, err := token.LoadOrCreateSecret(dataFolder)
	if err != nil {
		return errors.Wrap(err, "[runServe] load jwt secret")
	}
	tokens := token.New(secret, token.WithExpiry(cfg.GetTokenExpiry()))

	db, err := store.Open(filepath.Join(dataFolder, "omnikey.db"))
	if err != nil {
		return errors.Wrap(err, "[runServe] open database")
	}
	defer db.Close()

	repos, err := openRepos(db)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, repos, store.NewKV(db), tokens,
		server.WithUIOpener(logUIRequest))
	if err != nil {
		return errors.Wrap(err, "[runServe] create server")
	}

	listener, port, err := listenInRange(cfg, pinnedPort)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Handler: srv}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", port).Str("data", dataFolder).Msg("broker listening")
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "[runServe] serve")
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "[runServe] shutdown")
	}
	log.Info().Msg("broker stopped")
	return nil
}

func openRepos(db *bbolt.DB) (server.Repos, error) {
	usersRepo, err := store.NewBucket[users.User](db, "users")
	if err != nil {
		return server.Repos{}, err
	}
	appsRepo, err := store.NewBucket[apps.App](db, "apps")
	if err != nil {
		return server.Repos{}, err
	}
	keysRepo, err := store.NewBucket[keys.APIKey](db, "keys")
	if err != nil {
		return server.Repos{}, err
	}
	presetsRepo, err := store.NewBucket[presets.Preset](db, "presets")
	if err != nil {
		return server.Repos{}, err
	}
	usageRepo, err := store.NewBucket[usage.Record](db, "usage")
	if err != nil {
		return server.Repos{}, err
	}
	return server.Repos{
		Users:   usersRepo,
		Apps:    appsRepo,
		Keys:    keysRepo,
		Presets: presetsRepo,
		Usage:   usageRepo,
	}, nil
}

// listenInRange binds the first free port of the discovery range, or the
// pinned one if --port was given.
func listenInRange(cfg config.BrokerConfig, pinnedPort int) (net.Listener, int, error) {
	base, size := cfg.GetBasePort(), cfg.GetPortRangeSize()

	if pinnedPort != 0 {
		if pinnedPort < base || pinnedPort >= base+size {
			return nil, 0, errors.Errorf("[listenInRange] port %d outside range [%d, %d)", pinnedPort, base, base+size)
		}
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", pinnedPort))
		if err != nil {
			return nil, 0, errors.Wrapf(err, "[listenInRange] bind port %d", pinnedPort)
		}
		return listener, pinnedPort, nil
	}

	for port := base; port < base+size; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, errors.Errorf("[listenInRange] no free port in range [%d, %d)", base, base+size)
}

// logUIRequest stands in for the management surface: the packaging layer
// owns opening a real window, the broker only reports what should be shown.
func logUIRequest(params url.Values) error {
	log.Info().Str("params", params.Encode()).Msg("management UI requested")
	return nil
}

func setupLogging(cfg config.EnvConfig) {
	if cfg.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

func displayBanner(appName string) {
	banner := figure.NewFigure(appName, "cybermedium", true)
	banner.Print()
	fmt.Println()
}
