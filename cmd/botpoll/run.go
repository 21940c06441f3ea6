package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jdelaire/botpoll/adapters/prometheus_observer"
	"github.com/jdelaire/botpoll/adapters/telegram_api"
	"github.com/jdelaire/botpoll/core"
	"github.com/jdelaire/botpoll/core/configwatch"
	"github.com/jdelaire/botpoll/core/handlers"
	"github.com/jdelaire/botpoll/core/policy"
	"github.com/jdelaire/botpoll/core/ratelimit"
	"github.com/jdelaire/botpoll/internal/config"
	"github.com/jdelaire/botpoll/internal/keychain"
	"github.com/jdelaire/botpoll/internal/logging"
)

const metricsNamespace = "botpoll"

func newRunCmd() *cobra.Command {
	var inline bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start polling and dispatching until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			logger, closer, err := logging.New(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				File:   cfg.LogFile,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return run(ctx, cfg, runOptions{envFile: envFile, inline: inline, registry: reg}, logger)
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "log updates on the poll goroutine instead of dispatching them to handlers")
	return cmd
}

// runOptions carries what run needs besides the environment config.
type runOptions struct {
	envFile  string
	inline   bool
	registry *prometheus.Registry
}

func run(ctx context.Context, cfg config.Config, opts runOptions, logger *slog.Logger) error {
	token, err := keychain.ResolveToken(cfg.Token)
	if err != nil {
		return fmt.Errorf("bot token: %w", err)
	}
	bot := telegram_api.New(token).WithBaseURL(cfg.APIURL)

	var botName string
	me, err := bot.GetMe(ctx)
	if err != nil {
		var reqErr *core.RequestError
		if errors.As(err, &reqErr) && reqErr.Unauthorized() {
			return fmt.Errorf("bot token rejected: %w", err)
		}
		logger.Warn("getMe failed, continuing", "error", err)
	} else {
		botName = me.Username
		logger.Info("authenticated", "bot", me.Username, "id", me.ID)
	}

	metrics, err := prometheus_observer.New(metricsNamespace, opts.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	var sink core.Sink
	var dispatcher *core.Dispatcher
	var poller *core.Poller
	pol := policy.New(cfg.AllowedChats)

	if opts.inline {
		sink = &core.Router{
			OnUpdate: func(u core.Update) {
				logger.Info("update", "update_id", u.ID, "kind", u.Kind(), "chat_id", u.ChatID())
			},
		}
	} else {
		cmds := handlers.NewCommands()
		builtins := []struct {
			cmd     handlers.Command
			aliases []string
		}{
			{handlers.PingCommand{}, nil},
			{&handlers.HelpCommand{Commands: cmds}, []string{"start"}},
			{&handlers.StatusCommand{
				Started: time.Now(),
				Offset:  func() int64 { return poller.Offset() },
				Pending: func() int { return dispatcher.Len() },
			}, nil},
		}
		for _, b := range builtins {
			if err := cmds.Register(b.cmd, b.aliases...); err != nil {
				return err
			}
		}

		activator := core.NewFactoryActivator()
		ids, err := handlers.Provide(activator, handlers.Deps{
			Policy:   pol,
			Limiter:  ratelimit.New(),
			Commands: cmds,
			BotName:  botName,
			Logger:   logger,
		})
		if err != nil {
			return err
		}

		dispatcher = core.NewDispatcher(bot, logger,
			core.WithActivator(activator),
			core.WithObserver(core.Observers{core.LogObserver{Logger: logger}, metrics}),
			core.WithMaxInFlight(cfg.MaxInFlight),
			core.WithHandlerTimeout(cfg.HandlerTimeout),
		)
		for _, id := range ids {
			dispatcher.AddHandler(id)
		}
		sink = dispatcher
	}

	poller = core.NewPoller(bot, sink, logger,
		core.WithTimeout(cfg.PollTimeout),
		core.WithBatchObserver(metrics.ObserveBatch),
		core.WithRequestErrorHandler(func(err *core.RequestError) {
			metrics.RequestError(err)
			logger.Error("getUpdates rejected", "code", err.Code, "description", err.Description,
				"unauthorized", err.Unauthorized(), "retry_after", err.RetryAfter)
		}),
		core.WithGeneralErrorHandler(func(err error) {
			metrics.GeneralError(err)
			logger.Error("getUpdates failed", "error", err)
		}),
	)

	var watcher *configwatch.Watcher
	if !opts.inline && opts.envFile != "" && cfg.ReloadDelay > 0 {
		watcher, err = configwatch.New(opts.envFile, cfg.ReloadDelay, logger)
		if err != nil {
			return fmt.Errorf("watch settings: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(opts.registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if watcher != nil {
		g.Go(func() error {
			watcher.Run(gctx, func(path string) error {
				chats, err := config.ReadAllowedChats(path)
				if err != nil {
					return err
				}
				pol.SetAllowed(chats)
				logger.Info("allowed chats reloaded", "count", len(chats))
				return nil
			})
			return nil
		})
	}

	g.Go(func() error {
		err := poller.Start(gctx, core.StartOptions{
			Offset:         cfg.Offset,
			Limit:          cfg.PollLimit,
			AllowedUpdates: cfg.UpdateKinds(),
		})
		if err != nil {
			return err
		}
		<-poller.Done()

		if dispatcher == nil {
			return nil
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn("dispatches still running at exit", "error", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shut down", "offset", poller.Offset())
	return err
}
