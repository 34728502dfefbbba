package commands

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bharatr21/clinical-trials-agent/internal/client"
	"github.com/bharatr21/clinical-trials-agent/pkg/types"
)

var (
	askConversation string
	askShowSQL      bool
	askNoStream     bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question...]",
	Short: "Ask a question about clinical trial data",
	Long: `Ask a question about clinical trial data. The answer streams to
stdout as the agent produces it; pipeline stage changes are shown on
stderr.

Examples:
  trials ask "How many phase 3 diabetes trials are recruiting?"
  trials ask --conversation 2f1c... "And how many completed?"
  trials ask --show-sql "Top sponsors by enrollment"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "Continue an existing conversation")
	askCmd.Flags().BoolVar(&askShowSQL, "show-sql", false, "Print the executed SQL after the answer")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "Wait for the complete answer instead of streaming")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := buildClient(cfg)
	if err != nil {
		return err
	}

	// Ctrl-C cancels the in-flight query instead of killing the process
	// mid-write.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if askNoStream {
		result, err := c.Query(ctx, question, askConversation)
		if err != nil {
			return err
		}
		printResult(result)
		return nil
	}

	var failed bool
	result := c.ExecuteQuery(ctx, question, askConversation, client.Observers{
		OnStage: func(stage, label string) {
			fmt.Fprintf(os.Stderr, "... %s\n", label)
		},
		OnToken: func(content string) {
			fmt.Print(content)
		},
		OnError: func(message, code string) {
			failed = true
			fmt.Fprintf(os.Stderr, "error: %s\n", message)
			if types.CredentialError(code) {
				fmt.Fprintln(os.Stderr, "hint: pass your own key with --api-key or set TRIALS_API_KEY")
			}
		},
	})

	if result == nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\ninterrupted")
			return nil
		}
		if failed {
			// Details already reported through OnError.
			return fmt.Errorf("query failed")
		}
		return nil
	}

	fmt.Println()
	if askShowSQL && result.SQL != "" {
		fmt.Fprintf(os.Stderr, "\nsql: %s\n", result.SQL)
	}
	fmt.Fprintf(os.Stderr, "conversation: %s\n", result.ConversationID)
	return nil
}

func printResult(result *types.QueryResult) {
	fmt.Println(result.Answer)
	if askShowSQL && result.SQL != "" {
		fmt.Fprintf(os.Stderr, "\nsql: %s\n", result.SQL)
	}
	fmt.Fprintf(os.Stderr, "conversation: %s\n", result.ConversationID)
}
