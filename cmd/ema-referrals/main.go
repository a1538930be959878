package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/koscakluka/ema-referrals/core/referrals"
	"github.com/koscakluka/ema-referrals/internal/config"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ema-referrals",
	Short: "Voice assistant for referral partner questions",
	Long: "Ask for referral partners out loud and hear the answer back. " +
		"Runs a terminal client by default, optionally with a web control API.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		file, err := openLogFile(logFile)
		if err != nil {
			return err
		}
		defer file.Close()
		setupLogging(file, level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
		defer func() {
			if err := a.Close(); err != nil {
				slog.Error("failed to shut down cleanly", "error", err)
			}
		}()

		program := tea.NewProgram(newModel(a.orchestrator, cfg.Web), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("terminal client failed: %w", err)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(cmd.OutOrStdout(), cfg.Redacted())
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Ask a single question in text and print the answer",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := parseLevel(logLevel)
		if err != nil {
			return err
		}
		setupLogging(cmd.ErrOrStderr(), level)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Query)
		defer cancel()

		return ask(ctx, cmd.OutOrStdout(), newQueryService(cfg), strings.Join(args, " "))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./ema-referrals.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "log file while the terminal client runs (default is in the user cache dir)")
}

// queryService is the part of referrals.Service ask needs.
type queryService interface {
	Ask(ctx context.Context, query string, onPartial func(text string)) referrals.Result
}

// ask streams the answer to w as it grows, then lists extracted partners.
func ask(ctx context.Context, w io.Writer, service queryService, query string) error {
	var streamed string
	result := service.Ask(ctx, query, func(text string) {
		if strings.HasPrefix(text, streamed) {
			fmt.Fprint(w, text[len(streamed):])
		} else {
			fmt.Fprint(w, "\n"+text)
		}
		streamed = text
	})
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return fmt.Errorf("query interrupted: %w", err)
	}

	switch {
	case streamed == "":
		fmt.Fprintln(w, result.Text)
	case strings.HasPrefix(result.Text, streamed):
		fmt.Fprintln(w, result.Text[len(streamed):])
	default:
		// The streamed answer was replaced, e.g. by the fallback.
		fmt.Fprintln(w, "\n"+result.Text)
	}

	if result.Data != nil && !result.Data.IsEmpty() {
		fmt.Fprintln(w)
		for _, partner := range result.Data.NetworkPartners {
			fmt.Fprintf(w, "  in network: %s (%s)\n", partner.Name, partner.Company)
		}
		for _, partner := range result.Data.ExternalPartners {
			fmt.Fprintf(w, "  external:   %s\n", partner.Name)
		}
	}
	if result.IsFallback() {
		slog.Warn("no model answered, printed the fallback answer")
	}
	return nil
}

func printConfig(w io.Writer, c config.Config) {
	fmt.Fprintf(w, "Current Configuration:\n")
	fmt.Fprintf(w, "  Mode: %s\n", c.Mode)
	fmt.Fprintf(w, "  Language: %s\n", c.Language)
	fmt.Fprintf(w, "  Preferences: %s\n", c.PreferencesPath)
	fmt.Fprintf(w, "  LLM Provider: %s\n", c.LLM.Provider)
	fmt.Fprintf(w, "  Gemini API Key: %s\n", c.LLM.GeminiAPIKey)
	fmt.Fprintf(w, "  Gemini Model: %s\n", c.LLM.GeminiModel)
	fmt.Fprintf(w, "  Groq API Key: %s\n", c.LLM.GroqAPIKey)
	fmt.Fprintf(w, "  Groq Model: %s\n", c.LLM.GroqModel)
	fmt.Fprintf(w, "  OpenAI API Key: %s\n", c.LLM.OpenAIAPIKey)
	fmt.Fprintf(w, "  OpenAI Model: %s\n", c.LLM.OpenAIModel)
	fmt.Fprintf(w, "  Structured Extraction: %t\n", c.LLM.StructuredExtraction)
	fmt.Fprintf(w, "  Deepgram API Key: %s\n", c.Speech.DeepgramAPIKey)
	fmt.Fprintf(w, "  Listen Model: %s\n", c.Speech.ListenModel)
	fmt.Fprintf(w, "  TTS Provider: %s\n", c.Speech.TTSProvider)
	fmt.Fprintf(w, "  Voice: %s\n", c.Speech.Voice)
	fmt.Fprintf(w, "  Audio Backend: %s (buffer %d)\n", c.Audio.Backend, c.Audio.BufferSize)
	fmt.Fprintf(w, "  Web API: %t (%s)\n", c.Web.Enabled, c.Web.Address)
	fmt.Fprintf(w, "  Timeouts: query %s, speech %s, listen %s\n", c.Timeouts.Query, c.Timeouts.Speech, c.Timeouts.Listen)
}

func main() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(askCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
