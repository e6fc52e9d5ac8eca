package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/chat"
	"github.com/navio/ally/internal/gateway"
	"github.com/spf13/cobra"
)

var (
	chatWebSearch bool
	chatInputFile string
)

// chatCmd represents the `ally chat` command
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with your project files, or search the web",
	Long: `Ask a question about the current project's files. With --web the
question is answered from a web search instead.

Without a message, and with a terminal attached, the chat screen opens.

Examples:
  # One-off question against a project
  ally chat --project research "What are the key findings?"

  # Web search
  ally chat -w "Latest results on protein folding"

  # Read the question from a file or from stdin
  ally chat -f ./question.txt
  echo "Summarize the talk" | ally chat

  # Interactive chat screen
  ally chat`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return fmt.Errorf("quote the message: expected at most one argument, got %d", len(args))
		}
		if chatInputFile != "" && len(args) == 1 {
			return fmt.Errorf("specify either --file or an inline message, not both")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}

		var input string
		switch {
		case chatInputFile != "":
			data, err := os.ReadFile(chatInputFile)
			if err != nil {
				return fmt.Errorf("read %s: %w", chatInputFile, err)
			}
			input = string(data)
		case len(args) == 1:
			input = args[0]
		case !isStdinTTY():
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			input = string(data)
		default:
			return runChatTUI(a)
		}
		return runChatOnce(cmd.Context(), a, input, chatWebSearch, cmd.OutOrStdout())
	},
}

// runChatOnce sends a single message and prints the reply.
func runChatOnce(ctx context.Context, a *app, input string, webSearch bool, out io.Writer) error {
	a.useConfiguredProject()
	o := a.chat()
	o.SetInput(input)
	outcome, err := o.SubmitNewMessage(ctx, webSearch)
	if err != nil {
		return reported(err)
	}

	switch outcome.Kind {
	case chat.OutcomeResolved:
		reply := outcome.Reply
		if !strings.HasSuffix(reply, "\n") {
			reply += "\n"
		}
		fmt.Fprint(out, renderMarkdown(reply, 0))
		return nil
	case chat.OutcomeFailed:
		utils.LogDebug(fmt.Sprintf("chat: request failed: %v", outcome.Err))
		if !gateway.IsUnauthorized(outcome.Err) {
			utils.OutputError("%s (%s)", chat.ErrorReply, gateway.Message(outcome.Err))
		}
		return reported(outcome.Err)
	default:
		return outcome.Err
	}
}

func init() {
	chatCmd.Flags().BoolVarP(&chatWebSearch, "web", "w", false, "Answer from a web search instead of the project files")
	chatCmd.Flags().StringVarP(&chatInputFile, "file", "f", "", "Read the message from a file")
	rootCmd.AddCommand(chatCmd)
}
