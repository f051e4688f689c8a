package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Storage backends register themselves with the database package.
	_ "github.com/kozaktomas/face-recall/internal/database/badger"
	_ "github.com/kozaktomas/face-recall/internal/database/postgres"
)

var rootCmd = &cobra.Command{
	Use:   "face-recall",
	Short: "Recognize faces from a camera and keep transcripts of conversations",
	Long: `Face Recall watches a camera, recognizes known people in real time and
enrolls new ones automatically. While a person is recognized, everything the
speech engine hears is appended to the conversation log between the device
owner and that person. Logs can be summarized with an LLM (OpenAI, Groq, Gemini).`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
