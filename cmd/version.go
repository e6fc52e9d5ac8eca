package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/navio/ally/cmd/utils"
	"github.com/navio/ally/cmd/version"
	"github.com/spf13/cobra"
)

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Ally",
	Long: `Print the version number of Ally. With --check, also look up the latest
published release and say whether an update is available.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.OutputInfo("Ally %s", version.FormatVersionForDisplay(version.CurrentVersion))
		if !versionCheck {
			return nil
		}
		return runVersionCheck(cmd.Context(), cmd.OutOrStdout())
	},
}

func runVersionCheck(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	info, err := version.CheckLatest(ctx, true)
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	switch {
	case info.UpdateAvailable:
		fmt.Fprintf(out, "A new release is available: %s (you have %s)\n", info.LatestVersion, info.CurrentVersion)
		if info.ReleaseURL != "" {
			fmt.Fprintf(out, "Release notes: %s\n", info.ReleaseURL)
		}
	case !info.CurrentIsSemver:
		fmt.Fprintf(out, "Latest release is %s; this is a development build.\n", info.LatestVersion)
	default:
		fmt.Fprintln(out, "You are running the latest release.")
	}
	return nil
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "Check for a newer release")
	rootCmd.AddCommand(versionCmd)
}
