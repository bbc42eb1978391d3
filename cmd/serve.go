package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"collabdocs/config"
	"collabdocs/internal/presence"
	"collabdocs/pkg/logger"
	"collabdocs/pkg/metrics"
	"collabdocs/router"
	"collabdocs/socket"
	"collabdocs/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port     string
		logLevel string
		envFile  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Info until the configured level is known, so config warnings are not lost.
			logger.Init("info")
			defer logger.Sync()

			if envFile != "" {
				config.LoadEnvFile(envFile)
			} else {
				config.LoadEnvFile()
			}
			cfg := config.Load()
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			logger.Init(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "8080", "port to listen on (overrides PORT)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn or error (overrides LOG_LEVEL)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default .env)")
	return cmd
}

// NewStore builds the document store for cfg with a freshly generated
// current user.
func NewStore(cfg *config.Config) *store.Store {
	opts := []store.Option{store.WithCurrentUser(store.GenerateUser())}
	if cfg.SeedDocuments {
		opts = append(opts, store.WithDocuments(store.DefaultDocuments(time.Now())...))
	}
	return store.New(opts...)
}

// Serve runs the server until ctx is done, then shuts everything down.
func Serve(ctx context.Context, cfg *config.Config) error {
	st := NewStore(cfg)
	me := st.CurrentUser()
	logger.Sugar.Infof("Current user is %s (%s)", me.Name, me.ID)

	listener := presence.Fanout{st, presence.Funcs{
		Joined: func(store.User) { metrics.OnlineUsers.Set(float64(len(st.OnlineUsers()))) },
		Left:   func(string) { metrics.OnlineUsers.Set(float64(len(st.OnlineUsers()))) },
	}}
	hub := socket.NewHub(st, listener)

	defer st.Subscribe(hub.HandleChange)()
	defer st.Subscribe(func(c store.Change) {
		metrics.DocumentOperationsTotal.WithLabelValues(string(c.Kind)).Inc()
		metrics.Documents.Set(float64(len(st.Documents())))
	})()
	metrics.Documents.Set(float64(len(st.Documents())))
	metrics.OnlineUsers.Set(float64(len(st.OnlineUsers())))

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", cfg.Port, err)
	}
	srv := &http.Server{
		Handler: router.Setup(st, hub, router.Options{
			AllowedOrigin: cfg.AllowedOrigin,
			FacepileSize:  cfg.FacepileSize,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Sugar.Infof("CollabDocs listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Sugar.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if cfg.SimulatePresence {
		sim := &presence.Simulator{
			Listener:   listener,
			Peers:      cfg.SimulatedPeers,
			JoinAfter:  cfg.SimulateJoinDelay,
			LeaveAfter: cfg.SimulateLeaveDelay,
		}
		g.Go(func() error { return sim.Run(gctx) })
	}

	err = g.Wait()
	<-hub.Done()
	logger.Sugar.Info("Server stopped")
	return err
}
