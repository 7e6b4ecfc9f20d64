package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mezzofy/mz-ai-assistant-sub001/internal/agent"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/api"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/artifact"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/backend"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/capability"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/channel"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/config"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/input"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/realtime"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/security"
	"github.com/mezzofy/mz-ai-assistant-sub001/internal/task"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "assistant",
		Short: "Multimodal assistant gateway",
		Long:  "Normalizes text, image, video, audio, camera, file, and URL input and pushes asynchronous results to clients in real time.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.mz-assistant/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(daemonCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API and realtime gateways",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	configureLogger(cfg)

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	caps := registerBackends(cfg)

	store, err := artifact.NewStore(artifact.StoreConfig{
		DBPath:       cfg.Storage.DBPath,
		ArtifactDir:  cfg.Storage.ArtifactDir,
		MaxSizeBytes: cfg.Storage.MaxSizeBytes,
		BaseURL:      baseURL(cfg),
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	roles, err := security.LoadRoles(cfg.Security.RolesFile, logger)
	if err != nil {
		return err
	}

	responder := agent.NewResponder(agent.ResponderConfig{
		Capabilities: caps,
		Artifacts:    store,
		AgentName:    cfg.General.AgentName,
		Logger:       logger,
	})

	connReg := realtime.NewRegistry(logger)
	executor := task.NewExecutor(task.ExecutorConfig{
		Workers:          cfg.Tasks.Workers,
		EstimatedSeconds: cfg.Tasks.EstimatedSeconds,
		Registry:         connReg,
		Logger:           logger,
	})

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Channels.API.Enabled {
		server := api.NewServer(api.ServerConfig{
			Host:          cfg.Channels.API.Host,
			Port:          cfg.Channels.API.Port,
			Turns:         responder,
			Tasks:         executor,
			Artifacts:     store,
			Roles:         roles,
			MetricsEnable: cfg.Metrics.Enabled,
			Logger:        logger,
		})
		g.Go(func() error { return server.Start(ctx) })
	}

	if cfg.Channels.Realtime.Enabled {
		frames := input.NewHandlers(caps, logger)
		gateway := realtime.NewGateway(realtime.GatewayConfig{
			Port:     cfg.Channels.Realtime.Port,
			Path:     cfg.Channels.Realtime.Path,
			Registry: connReg,
			Frames:   frames,
			Turns:    responder,
			Logger:   logger,
		})
		g.Go(func() error { return gateway.Start(ctx) })
	}

	if cfg.Channels.Telegram.Enabled {
		tg := channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Turns:     responder,
			Logger:    logger,
		})
		g.Go(func() error { return tg.Start(ctx) })
	}

	logger.Info("assistant gateway running", "version", version)
	return g.Wait()
}

// registerBackends wires every enabled processing backend into the
// capability registry.
func registerBackends(cfg *config.Config) *capability.Registry {
	caps := capability.NewRegistry(logger)

	if bc, ok := cfg.Backends["speech"]; ok && bc.Enabled {
		caps.Register(backend.NewSpeech(backend.SpeechConfig{
			APIBase:  bc.APIBase,
			APIKey:   bc.APIKey,
			Model:    bc.Model,
			Language: bc.Language,
			Logger:   logger,
		}))
	}
	if bc, ok := cfg.Backends["vision"]; ok && bc.Enabled {
		caps.Register(backend.NewVision(backend.VisionConfig{
			APIBase: bc.APIBase,
			APIKey:  bc.APIKey,
			Model:   bc.Model,
			Logger:  logger,
		}))
	}
	if bc, ok := cfg.Backends["media"]; ok && bc.Enabled {
		caps.Register(backend.NewMedia(backend.MediaConfig{
			APIBase: bc.APIBase,
			APIKey:  bc.APIKey,
			Model:   bc.Model,
			Logger:  logger,
		}))
	}
	if bc, ok := cfg.Backends["chat"]; ok && bc.Enabled {
		caps.Register(backend.NewChat(backend.ChatConfig{
			APIBase: bc.APIBase,
			APIKey:  bc.APIKey,
			Model:   bc.Model,
			Logger:  logger,
		}))
	}
	caps.Register(backend.NewWeb(backend.WebConfig{Headless: true, Logger: logger}))

	return caps
}

func baseURL(cfg *config.Config) string {
	if cfg.Channels.API.BaseURL != "" {
		return cfg.Channels.API.BaseURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Channels.API.Host, cfg.Channels.API.Port)
}

func configureLogger(cfg *config.Config) {
	var level slog.Level
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		} else {
			logger.Warn("cannot open log file, logging to stderr", "path", cfg.General.LogFile, "err", err)
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				return nil
			}
			logger.Info("config", "path", cfgPath, "loaded", true)
			for name, bc := range cfg.Backends {
				logger.Info("backend", "name", name, "enabled", bc.Enabled, "apiBase", bc.APIBase)
			}
			logger.Info("channels",
				"api", cfg.Channels.API.Enabled,
				"realtime", cfg.Channels.Realtime.Enabled,
				"telegram", cfg.Channels.Telegram.Enabled,
			)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Get a config value by dot-notation path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	})
	return cmd
}
