package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/navio/ally/cmd/utils"
	"github.com/spf13/cobra"
)

var debug bool
var serverURL string
var projectFlag string

var rootCmd = &cobra.Command{
	Use:   "ally",
	Short: "Ally CLI - chat with your project files from the terminal",
	Long: `Ally is a terminal client for the Ally backend. It lets you sign in,
manage projects and their files, chat with a project (optionally backed by a
web search) and try prompts in the model playground.

Getting started:
  # Sign in
  ally login

  # Create a project and upload a document to it
  ally projects create research
  ally files upload --project research ./paper.pdf

  # Ask a question, or open the chat screen
  ally chat --project research "Summarize the paper"
  ally chat`,

	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Ally!")
		cmd.Help()
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Flags are parsed at this point; honor --debug
		if err := utils.InitDebugLogger("", debug); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not open debug log: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		utils.CloseDebugLogger()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Failures already shown as notices only set the exit status.
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// errReported marks a failure the user has already been told about.
var errReported = errors.New("reported")

func reported(err error) error {
	if err == nil || errors.Is(err, errReported) {
		return err
	}
	return fmt.Errorf("%w: %w", errReported, err)
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server-url", "", "Ally server URL (default: http://localhost:8000)")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project to use (default: default_project from ally.yaml)")
	rootCmd.PersistentFlags().StringVar(&utils.OverrideCwd, "cwd", "", "Override the current working directory for CLI operations")
}
