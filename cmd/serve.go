package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-recall/internal/ai"
	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/kozaktomas/face-recall/internal/facesvc"
	"github.com/kozaktomas/face-recall/internal/imagestore"
	"github.com/kozaktomas/face-recall/internal/overlay"
	"github.com/kozaktomas/face-recall/internal/session"
	"github.com/kozaktomas/face-recall/internal/speech"
	"github.com/kozaktomas/face-recall/internal/video"
	"github.com/kozaktomas/face-recall/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Recall web server.
The web server exposes the session controls (start, stop, status, live events
and the annotated preview), the known persons and the conversation logs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// openStore connects to the configured storage backend.
func openStore(cfg *config.Config) (database.Store, error) {
	if cfg.Database.Backend == "postgres" && cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	fmt.Printf("Opening %s database...\n", cfg.Database.Backend)
	store, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// sessionServices are the collaborators shared by serve and run.
type sessionServices struct {
	store   database.Store
	images  imagestore.Store
	events  *session.EventBroadcaster
	preview *overlay.Preview
}

// newSessionServices opens the store and the image store.
func newSessionServices(cfg *config.Config) (*sessionServices, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	images, err := imagestore.New(cfg.Images)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open image store: %w", err)
	}
	return &sessionServices{
		store:   store,
		images:  images,
		events:  session.NewEventBroadcaster(),
		preview: overlay.NewPreview(),
	}, nil
}

// controller builds a session controller over the services. quit may be nil.
func (s *sessionServices) controller(cfg *config.Config, quit <-chan struct{}) *session.Controller {
	return session.NewController(session.Dependencies{
		Source:        video.NewSource(cfg.Camera),
		Detector:      facesvc.NewClient(cfg.FaceService.URL, cfg.FaceService.Dim),
		Identities:    s.store,
		Conversations: s.store,
		Images:        s.images,
		Speech:        speech.NewHTTPEngine(cfg.Speech.URL, cfg.Speech.PollTimeoutSec),
		Pipeline:      cfg.Pipeline,
		Events:        s.events,
		Preview:       s.preview,
		Quit:          quit,
	})
}

// newSummarizer returns the configured summarizer, or nil when none is usable.
func newSummarizer(ctx context.Context, cfg *config.Config) ai.Summarizer {
	summarizer, err := ai.NewSummarizer(ctx, cfg.Summarizer)
	if err != nil {
		fmt.Printf("Warning: conversation summaries disabled: %v\n", err)
		return nil
	}
	return summarizer
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	services, err := newSessionServices(cfg)
	if err != nil {
		return err
	}
	defer services.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := services.controller(cfg, nil)
	server := web.NewServer(cfg, web.Dependencies{
		Controller: controller,
		Events:     services.events,
		Preview:    services.preview,
		Store:      services.store,
		Images:     services.images,
		Summarizer: newSummarizer(ctx, cfg),
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Recall on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	waitForSession(controller, 10*time.Second)
	return nil
}

// waitForSession gives a stopping session time to release the camera and flush
// its last transcript entry before the store is closed.
func waitForSession(controller *session.Controller, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for controller.Running() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
