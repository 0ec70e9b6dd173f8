// consult runs a single consultation from the command line, using the same
// pipeline and configuration as the server.
package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/aidoctor/domain/entities"
	"github.com/satriahrh/aidoctor/internal/app"
	"github.com/satriahrh/aidoctor/internal/config"
)

var (
	// Global flags
	configFile string
	verbose    bool
	useMocks   bool

	// Run command flags
	personaID string
	language  string
	imagePath string
	audioPath string
	text      string
	outputDir string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "consult",
		Short: "Run an AI doctor consultation from the terminal",
		Long: `Consult sends symptoms (voice recording, written text and an optional
picture) to the configured AI doctor and writes the spoken reply and a
plain text report.

Examples:
  # Written symptoms with the default persona
  consult run --text "I have had a fever for two days"

  # Hindi voice note and a picture, answered by the ayurvedic doctor
  consult run --persona ayurvedic --lang hi --audio note.webm --image rash.jpg`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: aidoctor.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useMocks, "mock", false, "Use offline mock providers")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(catalogCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one consultation",
		RunE:  runConsultation,
	}

	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "Doctor persona (modern, homeopathic, ayurvedic)")
	cmd.Flags().StringVarP(&language, "lang", "l", "", "Consultation language (en, hi)")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Picture of the affected area (JPG or PNG)")
	cmd.Flags().StringVarP(&audioPath, "audio", "a", "", "Voice recording describing the symptoms")
	cmd.Flags().StringVarP(&text, "text", "t", "", "Written description of the symptoms")
	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory for the reply audio and the report")

	return cmd
}

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the available personas and languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Personas:")
			for _, p := range a.Catalog.Personas() {
				fmt.Fprintf(out, "  %-12s %s %s (%s)\n", p.ID, p.Icon, p.Name, p.Specialty)
			}
			fmt.Fprintln(out, "Languages:")
			for _, l := range a.Catalog.Languages() {
				fmt.Fprintf(out, "  %-12s %s / %s\n", l.Code, l.Name, l.NativeName)
			}
			return nil
		},
	}
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

func setup(ctx context.Context) (*app.App, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if useMocks {
		cfg.Reasoning.Provider = config.ProviderMock
		cfg.Reasoning.VisionModel = "mock-vision"
		cfg.Reasoning.FallbackModel = "mock-text"
		cfg.STT.Provider = config.STTMock
		cfg.TTS.Provider = config.TTSMock
		cfg.Mongo.URI = ""
	}
	if err := cfg.ValidatePipeline(); err != nil {
		return nil, err
	}

	return app.New(ctx, cfg, nil, logger)
}

func runConsultation(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupts
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted, canceling...")
		cancel()
	}()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	svc := a.Service
	session, err := svc.CreateSession(ctx, entities.PersonaID(personaID), entities.LanguageCode(language))
	if err != nil {
		return err
	}

	if imagePath != "" {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		if _, err := svc.AttachImage(ctx, session.ID, data); err != nil {
			return err
		}
	}
	if audioPath != "" {
		data, err := os.ReadFile(audioPath)
		if err != nil {
			return fmt.Errorf("failed to read recording: %w", err)
		}
		if _, err := svc.AttachAudio(ctx, session.ID, data, audioMIME(audioPath, data)); err != nil {
			return err
		}
	}
	if text != "" {
		if _, err := svc.SetText(ctx, session.ID, text); err != nil {
			return err
		}
	}

	result, err := svc.Consult(ctx, session.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	catalog := a.Catalog
	p, _ := catalog.Persona(result.Persona)
	fmt.Fprintf(out, "%s\n%s\n\n", catalog.Label(result.Language, "report.symptoms"), result.Narrative)
	fmt.Fprintf(out, "%s %s\n%s\n", p.Icon, p.Name, result.ReplyText)

	return writeOutputs(ctx, cmd, a, session.ID, result)
}

func writeOutputs(ctx context.Context, cmd *cobra.Command, a *app.App, sessionID string, result *entities.ConsultationResult) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out := cmd.OutOrStdout()

	report, err := a.Service.Report(ctx, sessionID)
	if err != nil {
		return err
	}
	reportPath := filepath.Join(outputDir, report.FileName)
	if err := os.WriteFile(reportPath, []byte(report.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "\nReport: %s\n", reportPath)

	if !result.HasAudio {
		if result.SpeechError != "" {
			fmt.Fprintf(out, "%s (%s)\n", a.Catalog.Label(result.Language, "speech.unavailable"), result.SpeechError)
		}
		return nil
	}
	audio, err := a.Service.ResultAudio(ctx, sessionID)
	if err != nil {
		return err
	}
	audioPath := filepath.Join(outputDir, fmt.Sprintf("doctor_response_%s.mp3", sessionID[:8]))
	if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write reply audio: %w", err)
	}
	fmt.Fprintf(out, "Voice reply: %s\n", audioPath)
	return nil
}

func audioMIME(path string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
