package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/playground"
	"github.com/navio/ally/internal/session"
	"github.com/spf13/cobra"
)

var (
	playgroundModelName   string
	playgroundTemperature float64
	playgroundMaxTokens   int
	playgroundRole        string
	playgroundListModels  bool
)

var playgroundCmd = &cobra.Command{
	Use:   "playground [message]",
	Short: "Try prompts directly against a model",
	Long: `Send prompts straight to a model, without project files. The playground
keeps its own conversation and reports timing for every reply.

Without a message, and with a terminal attached, the playground screen opens.

Examples:
  ally playground --models
  ally playground --model llama2-70b --temperature 0.2 "Write a haiku about llamas"
  ally playground --role assistant "Sure, here is the summary you asked for."
  ally playground`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if playgroundListModels {
			printModels(cmd.OutOrStdout())
			return nil
		}
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}

		var o playgroundOverrides
		o.Model = playgroundModelName
		if cmd.Flags().Changed("temperature") {
			o.Temperature = &playgroundTemperature
		}
		if cmd.Flags().Changed("max-tokens") {
			o.MaxTokens = &playgroundMaxTokens
		}
		settings, err := a.playgroundSettings(o)
		if err != nil {
			return err
		}
		ps := playground.New(a.gw, settings)
		switch strings.ToLower(strings.TrimSpace(playgroundRole)) {
		case "", string(session.RoleUser):
		case string(session.RoleAssistant):
			ps.ToggleRole()
		default:
			return fmt.Errorf("unknown role %q (use user or assistant)", playgroundRole)
		}

		if len(args) == 0 && isStdinTTY() {
			return runPlaygroundTUI(a, ps)
		}
		input := ""
		if len(args) == 1 {
			input = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			input = string(data)
		}
		return runPlaygroundOnce(cmd.Context(), ps, input, cmd.OutOrStdout())
	},
}

func printModels(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tLABEL\tDEFAULT")
	fmt.Fprintln(w, "----\t-----\t-------")
	for i, m := range playground.Models {
		def := ""
		if i == 0 {
			def = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name, m.Label, def)
	}
	w.Flush()
}

func runPlaygroundOnce(ctx context.Context, ps *playground.Session, input string, out io.Writer) error {
	ps.SetInput(input)
	msg, err := ps.Send(ctx)
	if err != nil {
		if errors.Is(err, playground.ErrEmptyInput) {
			return err
		}
		if !gateway.IsUnauthorized(err) {
			utils.OutputError("%s (%s)", msg.Content, gateway.Message(err))
		}
		return reported(err)
	}
	reply := msg.Content
	if !strings.HasSuffix(reply, "\n") {
		reply += "\n"
	}
	fmt.Fprint(out, renderMarkdown(reply, 0))
	// Keep piped output to the reply alone.
	if msg.Metrics != nil && isStdoutTTY() {
		utils.OutputInfoPlain("%s", formatMetrics(*msg.Metrics))
	}
	return nil
}

// formatMetrics renders reply metrics for a status line.
func formatMetrics(m playground.Metrics) string {
	return fmt.Sprintf("⏱ first byte %s · total %s · ~%d tokens",
		m.TimeToFirstByte.Round(time.Millisecond), m.Total.Round(time.Millisecond), m.Tokens)
}

func init() {
	playgroundCmd.Flags().StringVarP(&playgroundModelName, "model", "m", "", "Model to query (see --models)")
	playgroundCmd.Flags().Float64VarP(&playgroundTemperature, "temperature", "t", 0.7, "Sampling temperature, 0 to 1")
	playgroundCmd.Flags().IntVar(&playgroundMaxTokens, "max-tokens", playground.MaxMaxTokens, "Maximum tokens in the reply, 1 to 5000")
	playgroundCmd.Flags().StringVar(&playgroundRole, "role", "user", "Author of the message: user or assistant")
	playgroundCmd.Flags().BoolVar(&playgroundListModels, "models", false, "List the available models and exit")
	rootCmd.AddCommand(playgroundCmd)
}
