package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/navio/ally/internal/workspace"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List and upload project files",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var filesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List the files of the current project",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}
		return runFilesList(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func runFilesList(ctx context.Context, a *app, out io.Writer) error {
	project := a.useConfiguredProject()
	if project == nil {
		return fmt.Errorf("%w; pass --project or run 'ally projects use'", workspace.ErrNoProject)
	}
	files, err := a.workspace().FetchFiles(ctx, project)
	if err != nil {
		return reported(err)
	}
	if len(files) == 0 {
		fmt.Fprintf(out, "No files in project %s\n", project.Label)
		return nil
	}
	for _, f := range files {
		fmt.Fprintln(out, f)
	}
	return nil
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <file> [file...]",
	Short: "Upload files to the current project",
	Long: `Upload files to the current project. Accepted types are .pdf, .mp4 and
.wav, up to 10MB each. A summary is emailed to you once the upload is
processed.

Examples:
  ally files upload --project research ./paper.pdf ./talk.mp4`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}
		return runFilesUpload(cmd.Context(), a, args, cmd.OutOrStdout())
	},
}

func runFilesUpload(ctx context.Context, a *app, paths []string, out io.Writer) error {
	a.useConfiguredProject()
	files, err := a.workspace().UploadFiles(ctx, paths)
	if err != nil {
		return reported(err)
	}
	fmt.Fprintf(out, "%d file(s) now in project %s\n", len(files), a.server.Project)
	return nil
}

func init() {
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
	rootCmd.AddCommand(filesCmd)
}
