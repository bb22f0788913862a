package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pders01/signally/internal/config"
	"github.com/pders01/signally/internal/logging"
)

// Version is the version of the application, set at build time
var Version = "dev"

var (
	configPath  string
	logLevel    string
	displayKind string
	noIntro     bool
	quiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "signally",
	Short: "Rotating two-line display of time, quotes, weather and messages",
	Long: `signally drives a 16x2 character display through a fixed rotation:
clock, the configured data and message slots, then weather. Upstream APIs
are called only within their daily quota and time window; everything else
is served from cache or from canned messages.`,
	SilenceUsage: true,
	RunE:         runDisplay,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "signally %s\n", Version)
		fmt.Fprintln(out, "Rotating display scheduler")
		fmt.Fprintln(out, "github.com/pders01/signally")
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d providers, %d slots\n",
			len(cfg.Providers), len(cfg.Schedule.Slots)+2)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
	rootCmd.Flags().StringVar(&displayKind, "display", "", "Display kind: console, plain or memory (overrides config)")
	rootCmd.Flags().BoolVar(&noIntro, "no-intro", false, "Skip the intro animation")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Skip startup banner")

	rootCmd.AddCommand(versionCmd, checkCmd, generateConfigCmd, statusCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration, applies flag overrides and validates
// the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if displayKind != "" {
		cfg.Display.Kind = displayKind
	}
	if noIntro {
		cfg.Display.Intro.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runDisplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.Setup(logging.ParseLevel(cfg.Log.Level), cfg.Log.File)
	if err != nil {
		return err
	}
	defer logging.Close()

	if !quiet && cfg.Display.Kind == "console" {
		showBanner(cmd.OutOrStdout())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	logger.Info().Str("version", Version).Msg("signally starting")
	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("signally stopped")
	return nil
}

func showBanner(out io.Writer) {
	title := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#4ECDC4")).
		Bold(true).
		Render("signally")
	tagline := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#95E1D3")).
		Render("clock - quotes - weather - messages")

	banner := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#FF6B6B")).
		Padding(0, 3).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, tagline))
	fmt.Fprintln(out, banner)
}
