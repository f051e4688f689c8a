package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-recall/internal/ai"
	"github.com/kozaktomas/face-recall/internal/config"
	"github.com/kozaktomas/face-recall/internal/database"
	"github.com/spf13/cobra"
)

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "Inspect and summarize conversation logs",
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print conversation logs of a patient",
	Long: `Print the conversation logs of a patient, or only the log with one known person.

Examples:
  face-recall conversations show --patient patient_1
  face-recall conversations show --patient patient_1 --person alice_20240301_101500 --date 2024-03-01`,
	Args: cobra.NoArgs,
	RunE: runConversationsShow,
}

var conversationsSummarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Summarize the conversation with one known person",
	Long: `Summarize the conversation between a patient and a known person with the
configured LLM (SUMMARIZER_PROVIDER openai, groq or gemini).

Examples:
  face-recall conversations summarize --patient patient_1 --person alice_20240301_101500
  face-recall conversations summarize --patient patient_1 --person alice_20240301_101500 --date 2024-03-01`,
	Args: cobra.NoArgs,
	RunE: runConversationsSummarize,
}

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsSummarizeCmd)

	for _, c := range []*cobra.Command{conversationsShowCmd, conversationsSummarizeCmd} {
		c.Flags().String("patient", "", "Patient (owner) id")
		c.Flags().String("person", "", "Known person id")
		c.Flags().String("date", "", "Only entries of this day (YYYY-MM-DD)")
		c.Flags().Bool("json", false, "Output as JSON")
		_ = c.MarkFlagRequired("patient")
	}
	_ = conversationsSummarizeCmd.MarkFlagRequired("person")
}

// parseDayFlag parses --date; an empty flag gives the zero time.
func parseDayFlag(cmd *cobra.Command) (time.Time, error) {
	raw := mustGetString(cmd, "date")
	if raw == "" {
		return time.Time{}, nil
	}
	day, err := ai.ParseDay(raw, time.Now())
	if err != nil {
		if errors.Is(err, ai.ErrFutureDate) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("invalid --date %q, use YYYY-MM-DD", raw)
	}
	return day, nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	patient := mustGetString(cmd, "patient")
	person := mustGetString(cmd, "person")
	jsonOutput := mustGetBool(cmd, "json")
	day, err := parseDayFlag(cmd)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var conversations []database.Conversation
	if person != "" {
		conv, err := store.GetConversation(ctx, patient, person)
		if err != nil {
			return fmt.Errorf("failed to get conversation: %w", err)
		}
		if conv != nil {
			conversations = append(conversations, *conv)
		}
	} else {
		conversations, err = store.ListConversations(ctx, patient)
		if err != nil {
			return fmt.Errorf("failed to list conversations: %w", err)
		}
	}

	if !day.IsZero() {
		for i := range conversations {
			conversations[i].Entries = ai.FilterByDate(conversations[i].Entries, day)
		}
	}

	if jsonOutput {
		return printJSON(conversations)
	}

	if len(conversations) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	for _, conv := range conversations {
		fmt.Printf("== %s with %s (%d entries)\n", conv.PatientID, conv.KnownPersonID, len(conv.Entries))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, e := range conv.Entries {
			fmt.Fprintf(w, "%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.Text)
		}
		w.Flush()
		fmt.Println()
	}
	return nil
}

func runConversationsSummarize(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	patient := mustGetString(cmd, "patient")
	person := mustGetString(cmd, "person")
	jsonOutput := mustGetBool(cmd, "json")
	day, err := parseDayFlag(cmd)
	if err != nil {
		return err
	}

	summarizer, err := ai.NewSummarizer(ctx, cfg.Summarizer)
	if err != nil {
		return fmt.Errorf("failed to create summarizer: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	conv, err := store.GetConversation(ctx, patient, person)
	if err != nil {
		return fmt.Errorf("failed to get conversation: %w", err)
	}

	summary, err := ai.SummarizeConversation(ctx, summarizer, conv, day)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(summary)
	}

	if summary.MessageCount == 0 {
		if summary.Date != "" {
			fmt.Printf("No conversations found between these users for %s.\n", summary.Date)
		} else {
			fmt.Println("No conversations found between these users.")
		}
		return nil
	}

	fmt.Printf("Summary (%d messages", summary.MessageCount)
	if len(summary.Dates) > 0 {
		fmt.Printf(", %s to %s", summary.Dates[0], summary.Dates[len(summary.Dates)-1])
	}
	fmt.Printf("):\n\n%s\n", summary.Summary)

	usage := summarizer.GetUsage()
	fmt.Printf("\nTokens used: %d input, %d output\n", usage.InputTokens, usage.OutputTokens)
	return nil
}
