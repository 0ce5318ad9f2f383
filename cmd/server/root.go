package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/Brownie44l1/facenet-api/internal/config"
	"github.com/Brownie44l1/facenet-api/internal/model"
	"github.com/Brownie44l1/facenet-api/internal/preprocess"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	modelPath  string
	port       int
)

var rootCmd = &cobra.Command{
	Use:           "facenet-api",
	Short:         "Face embedding generator API",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

// Execute runs the CLI with a context cancelled on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	bindFlags(rootCmd)
}

func bindFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVarP(&modelPath, "model", "m", "", "Path to the FaceNet ONNX model (overrides config)")
	cmd.PersistentFlags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides config)")
}

// loadConfig applies flag overrides on top of file and environment settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("model") {
		cfg.Model.Path = modelPath
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

// loadPipeline builds the preprocessor and loads the model described by cfg.
func loadPipeline(cfg *config.Config) (*preprocess.Preprocessor, *model.Server, error) {
	layout, err := preprocess.ParseLayout(cfg.Preprocess.Layout)
	if err != nil {
		return nil, nil, err
	}
	pre := preprocess.New(preprocess.Options{
		Size:   cfg.Preprocess.Size,
		Layout: layout,
	})

	log.Info().Str("path", cfg.Model.Path).Msg("Loading model")

	server, err := model.Load(model.Config{
		ModelPath:      cfg.Model.Path,
		LibraryPath:    cfg.Model.LibraryPath,
		InputName:      cfg.Model.InputName,
		OutputName:     cfg.Model.OutputName,
		Sessions:       cfg.Model.Sessions,
		IntraOpThreads: cfg.Model.IntraOpThreads,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize model server: %w", err)
	}

	if !slices.Equal(pre.Shape(), server.InputShape()) {
		log.Warn().
			Ints64("preprocess_shape", pre.Shape()).
			Ints64("model_shape", server.InputShape()).
			Msg("Preprocessor output does not match model input; requests will fail")
	}

	return pre, server, nil
}
