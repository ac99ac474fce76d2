// Package main runs the NFC reader bridge: a local server that lets scripted
// applications read FeliCa and MIFARE tags over WebSocket, plus build-time
// tooling for the iOS app that embeds it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/systray"
	"github.com/spf13/cobra"

	"github.com/nedpals/nfc-reader-bridge/buildinfo"
	"github.com/nedpals/nfc-reader-bridge/config"
)

const envFile = ".env"

// Flag values. Zero values leave the environment configuration alone.
var (
	devicePathFlag string
	portFlag       int
	apiSecretFlag  string
	tlsFlag        bool
	noMDNSFlag     bool
	trayFlag       bool
	logLevelFlag   string
)

var rootCmd = &cobra.Command{
	Use:           buildinfo.Name,
	Short:         buildinfo.Description,
	Long:          buildinfo.DisplayName + " exposes a local NFC reader to scripted applications over WebSocket.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reader bridge (default)",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		f := cmd.Flags()
		f.StringVar(&devicePathFlag, "device", "", "Path to NFC device (default: auto-detect)")
		f.IntVar(&portFlag, "port", 0, "Port to listen on (default 18080)")
		f.StringVar(&apiSecretFlag, "api-secret", "", "Secret clients must present (optional)")
		f.BoolVar(&tlsFlag, "tls", false, "Serve WSS/HTTPS with a locally trusted certificate")
		f.BoolVar(&noMDNSFlag, "no-mdns", false, "Disable mDNS advertisement")
		f.BoolVar(&trayFlag, "tray", false, "Run with a system tray icon")
	}
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
}

// loadConfig merges the environment with command-line overrides and
// configures logging.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, err
	}
	if devicePathFlag != "" {
		cfg.Device = devicePathFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if apiSecretFlag != "" {
		cfg.APISecret = apiSecretFlag
	}
	if tlsFlag {
		cfg.EnableTLS = true
	}
	if noMDNSFlag {
		cfg.EnableMDNS = false
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, config.SetupLogging(cfg.LogLevel, cfg.LogFormat)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	agent := NewAgent(cfg, newManager())

	if trayFlag {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigChan
			systray.Quit()
		}()
		NewSystrayApp(agent).Run()
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return serveUntil(ctx, agent)
}

// serveUntil runs agent until ctx is done or the server fails.
func serveUntil(ctx context.Context, agent *Agent) error {
	if err := agent.Start(); err != nil {
		return err
	}
	defer agent.Stop()

	fmt.Printf("%s %s listening on %s\n", buildinfo.DisplayName, buildinfo.FullVersion(), agent.BridgeURL())

	select {
	case <-ctx.Done():
		agentLogger.Info("Shutdown signal received, stopping server...")
		return nil
	case err := <-agent.Done():
		return err
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
