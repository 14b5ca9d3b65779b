package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bryanchriswhite/CamStreamer/internal/api"
	"github.com/bryanchriswhite/CamStreamer/internal/config"
	"github.com/bryanchriswhite/CamStreamer/internal/logger"
	"github.com/bryanchriswhite/CamStreamer/internal/registry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the CamStreamer server",
	Long: `Start the acquisition workers for every configured camera and serve
the REST control API, MJPEG streams and the websocket event feed.`,
	Example: `  # Start with the default config
  camstreamer serve

  # Start on a custom port
  camstreamer serve --port 9090

  # Start with a specific config file
  camstreamer serve --config /path/to/config.yaml

  # Start with debug logging
  camstreamer serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}

	// Override port from flag if provided
	if viper.IsSet("server_port") {
		if port := viper.GetInt("server_port"); port > 0 {
			configMgr.SetPort(port)
		}
	}

	// Override log level from flag if provided
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, true)

	log := logger.WithComponent("serve")
	log.Info().Str("path", configMgr.GetConfigPath()).Msg("Configuration loaded")

	if len(cfg.Cameras) == 0 {
		log.Warn().Msg("No cameras configured; the server will run with an empty registry")
	}

	reg, err := registry.New(cfg.Cameras, nil)
	if err != nil {
		return fmt.Errorf("failed to build device registry: %w", err)
	}

	reg.StartAll()
	defer reg.StopAll()
	log.Info().Int("devices", reg.Len()).Msg("Acquisition workers started")

	server := api.NewServer(reg)
	go func() {
		if err := server.Start(cfg.ServerPort); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()
	log.Info().Int("port", cfg.ServerPort).Msg("CamStreamer is running, press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down gracefully")
	return nil
}
