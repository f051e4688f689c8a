package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/session"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a recognition session in the foreground",
	Long: `Open the camera and run one recognition session until it ends.

The session ends when a new person has been enrolled, when you type "q" and
press Enter, or on Ctrl+C. Recognized people and transcribed speech are
printed as they happen.

Examples:
  # Replay a directory of frames instead of a live camera
  CAMERA_REPLAY_DIR=./frames face-recall run

  # Quiet mode, only the final result
  face-recall run --quiet`,
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("quiet", false, "Do not print session events")
}

func runSession(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	quiet := mustGetBool(cmd, "quiet")

	services, err := newSessionServices(cfg)
	if err != nil {
		return err
	}
	defer services.store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quit := make(chan struct{})
	go watchQuitKey(os.Stdin, quit)

	if !quiet {
		listener := services.events.AddListener()
		defer services.events.RemoveListener(listener)
		go printEvents(listener)
	}

	fmt.Println(`Session starting. Type "q" and press Enter to stop.`)
	res, err := services.controller(cfg, quit).Start(ctx)
	if err != nil {
		return fmt.Errorf("session failed: %w", err)
	}

	printResult(res)
	return nil
}

// watchQuitKey closes quit once a line consisting of "q" is read.
func watchQuitKey(r io.Reader, quit chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), "q") {
			close(quit)
			return
		}
	}
}

func printEvents(events <-chan session.Event) {
	for event := range events {
		switch event.Type {
		case session.EventIdentity:
			fmt.Printf("[%s] recognized: %s\n", event.Time.Format("15:04:05"), event.Message)
		case session.EventTranscript:
			fmt.Printf("[%s] audio: %s\n", event.Time.Format("15:04:05"), event.Message)
		case session.EventEnrolled:
			fmt.Printf("[%s] %s\n", event.Time.Format("15:04:05"), event.Message)
		}
	}
}

func printResult(res session.Result) {
	fmt.Printf("\nSession %s ended: %s\n", res.SessionID, res.Outcome)
	fmt.Printf("Frames read: %d (processed %d)\n", res.Frames, res.Processed)
	if !res.StartedAt.IsZero() && !res.EndedAt.IsZero() {
		fmt.Printf("Duration: %s\n", res.EndedAt.Sub(res.StartedAt).Round(time.Millisecond))
	}
	if res.Enrolled != nil {
		fmt.Printf("Enrolled: %s (owner %s, image %s)\n", res.Enrolled.ID, res.Enrolled.OwnerID, res.Enrolled.ImagePath)
	}
	if res.Error != "" {
		fmt.Printf("Error: %s\n", res.Error)
	}
}
