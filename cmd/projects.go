package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/navio/ally/cmd/config"
	"github.com/navio/ally/cmd/utils"
	"github.com/spf13/cobra"
)

// projectsCmd represents the projects command
var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage your Ally projects",
	Long: `Manage the projects (workspaces) your files and chats belong to.

Available commands:
  list   - List your projects
  create - Create a project
  use    - Make a project the default for chat and file commands`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

var projectsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your projects",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}
		return runProjectsList(cmd.Context(), a, cmd.OutOrStdout())
	},
}

func runProjectsList(ctx context.Context, a *app, out io.Writer) error {
	mgr := a.workspace()
	defer mgr.Close()

	projects, err := mgr.FetchProjects(ctx)
	if err != nil {
		return reported(err)
	}
	if len(projects) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tDEFAULT")
	fmt.Fprintln(w, "----\t-------")
	for _, p := range projects {
		mark := ""
		if p.Value == a.server.Project {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\n", p.Label, mark)
	}
	return w.Flush()
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}
		mgr := a.workspace()
		defer mgr.Close()

		mgr.OpenForm()
		mgr.SetFormName(args[0])
		if _, err := mgr.SubmitForm(cmd.Context()); err != nil {
			return reported(err)
		}
		return nil
	},
}

var projectsUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a project the default for chat and file commands",
	Long: `Make a project the default. The choice is stored as default_project in
the ally config file in use, or in ~/.ally/ally.yaml when there is none.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		if err := a.requireLogin(); err != nil {
			return err
		}
		path, err := runProjectsUse(cmd.Context(), a, args[0])
		if err != nil {
			return err
		}
		utils.OutputSuccess("Default project is now %q (%s)", args[0], path)
		return nil
	},
}

// runProjectsUse checks that name exists and persists it as the default
// project. It returns the config file it wrote.
func runProjectsUse(ctx context.Context, a *app, name string) (string, error) {
	mgr := a.workspace()
	defer mgr.Close()

	projects, err := mgr.FetchProjects(ctx)
	if err != nil {
		return "", reported(err)
	}
	found := false
	for _, p := range projects {
		if p.Value == name {
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("project %q not found; run 'ally projects list'", name)
	}

	path := a.cfgPath
	// SaveConfig writes YAML; other formats move to the data dir file.
	if path == "" || (filepath.Ext(path) != ".yaml" && filepath.Ext(path) != ".yml") {
		path = filepath.Join(a.dataDir, "ally.yaml")
	}
	cfg := *a.cfg
	cfg.DefaultProject = name
	if err := config.SaveConfig(&cfg, path); err != nil {
		return "", err
	}
	a.server.Project = name
	return path, nil
}

func init() {
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsUseCmd)

	rootCmd.AddCommand(projectsCmd)
}
