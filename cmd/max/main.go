package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxsync/max/pkg/deploy"
	"github.com/maxsync/max/pkg/errdefs"
	"github.com/maxsync/max/pkg/registry"
	"github.com/maxsync/max/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, renderError(err))
		os.Exit(1)
	}
}

const (
	colorRed   = "\x1b[31m"
	colorDim   = "\x1b[2m"
	colorReset = "\x1b[0m"
)

// colorOutput reports whether stderr should carry ansi colors, honouring
// NO_COLOR and FORCE_COLOR.
func colorOutput() bool {
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func colorize(s, color string) string {
	if !colorOutput() {
		return s
	}
	return color + s + colorReset
}

// renderError formats an error for the terminal. Structured errors carry a
// facet hint; invariant violations are flagged as bugs.
func renderError(err error) string {
	var sb strings.Builder
	if errdefs.Has(err, errdefs.InvariantViolated) {
		sb.WriteString("This is a bug in max. Please report it.\n")
	}
	sb.WriteString(colorize("Error: ", colorRed))
	sb.WriteString(err.Error())
	switch {
	case errdefs.Has(err, errdefs.NotFound):
		sb.WriteString(colorize(" (not found)", colorDim))
	case errdefs.Has(err, errdefs.BadInput):
		sb.WriteString(colorize(" (invalid input)", colorDim))
	case errdefs.Has(err, errdefs.NotImplemented), errdefs.Has(err, errdefs.NotSupported):
		sb.WriteString(colorize(" (not supported)", colorDim))
	}
	sb.WriteString("\n")
	return sb.String()
}

var rootCmd = &cobra.Command{
	Use:   "max",
	Short: "Max - federated data integration",
	Long: `Max syncs third-party SaaS data into local queryable engines and
federates them three levels deep: installations inside workspaces,
workspaces under one global node. Every node speaks the same RPC
surface, so these commands work against any target url.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Max version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("target", "",
		"Target node url: max://<host>[/<workspace>[/<installation>]] (default from MAX_TARGET)")

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workspacesCmd)
	rootCmd.AddCommand(connectorsCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(installsCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(syncCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the target workspace's health and installations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		health := ws.Health(ctx)
		fmt.Printf("Workspace: %s\n", health.Status)
		if health.Reason != "" {
			fmt.Printf("  Reason: %s\n", health.Reason)
		}

		records, err := ws.ListInstallations(ctx)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No installations.")
			return nil
		}

		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCONNECTOR\tSTRATEGY\tHEALTH\tID")
		for _, record := range records {
			state := string(ws.Installation(record.ID).Health(ctx).Status)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				record.Name, record.Connector, record.Deployment.Strategy, state, record.ID)
		}
		return w.Flush()
	},
}

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "List workspaces known to this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := registry.GlobalManifestPath()
		if err != nil {
			return err
		}
		manifest, err := registry.OpenWorkspaceManifest(path)
		if err != nil {
			return err
		}
		records := manifest.List()
		if len(records) == 0 {
			fmt.Println("No workspaces. Run 'max daemon' inside a project to register one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROJECT ROOT\tCONNECTED\tID")
		for _, record := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				record.Name, record.ProjectRoot,
				record.ConnectedAt.Format(time.RFC3339), record.ID)
		}
		return w.Flush()
	},
}

var connectorsCmd = &cobra.Command{
	Use:   "connectors [name]",
	Short: "List the target workspace's connectors, or show one's schema",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if len(args) == 0 {
			names, err := ws.ListConnectors(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		schema, err := ws.ConnectorSchema(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Namespace: %s\n", schema.Namespace)
		for _, entityType := range schema.Roots {
			fmt.Printf("Root: %s\n", entityType)
		}
		for entityType, def := range schema.Entities {
			fmt.Printf("\n%s\n", entityType)
			for _, field := range def.Fields {
				switch field.Kind {
				case types.FieldCollection:
					fmt.Printf("  %s: collection<%s>\n", field.Name, field.Target)
				case types.FieldRef:
					fmt.Printf("  %s: ref<%s>\n", field.Name, field.Target)
				default:
					fmt.Printf("  %s: %s\n", field.Name, field.Scalar)
				}
			}
		}
		return nil
	},
}

var installCmd = &cobra.Command{
	Use:   "install -f MANIFEST",
	Short: "Create an installation from a yaml manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("file")

		spec, deployment, err := deploy.LoadManifest(path)
		if err != nil {
			return err
		}

		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		id, err := ws.CreateInstallation(ctx, spec, deployment)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Installation '%s' created (%s)\n", spec.Name, id)
		return nil
	},
}

var installsCmd = &cobra.Command{
	Use:   "installs",
	Short: "List the target workspace's installations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		records, err := ws.ListInstallations(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No installations. Run 'max install -f <manifest>' to add one.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCONNECTOR\tSTRATEGY\tCONNECTED\tID")
		for _, record := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				record.Name, record.Connector, record.Deployment.Strategy,
				record.ConnectedAt.Format(time.RFC3339), record.ID)
		}
		return w.Flush()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove INSTALLATION",
	Short: "Remove an installation by name or id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		record, err := resolveInstallation(ctx, ws, args[0])
		if err != nil {
			return err
		}
		if err := ws.RemoveInstallation(ctx, record.ID); err != nil {
			return err
		}
		fmt.Printf("✓ Installation '%s' removed\n", record.Name)
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync INSTALLATION",
	Short: "Run a sync on an installation by name or id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		detach, _ := cmd.Flags().GetBool("detach")

		ws, closer, err := dialWorkspace(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		record, err := resolveInstallation(ctx, ws, args[0])
		if err != nil {
			return err
		}
		inst := ws.Installation(record.ID)

		syncID, err := inst.Sync(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Sync %s started on '%s'\n", syncID, record.Name)
		if detach {
			return nil
		}

		completion, err := inst.SyncCompletion(ctx, syncID)
		if err != nil {
			return err
		}
		switch {
		case completion.TasksFailed > 0:
			fmt.Printf("✗ Sync %s: %d tasks completed, %d failed (%dms)\n",
				completion.Status, completion.TasksCompleted, completion.TasksFailed, completion.Duration)
			return fmt.Errorf("sync finished with failures")
		default:
			fmt.Printf("✓ Sync %s: %d tasks completed (%dms)\n",
				completion.Status, completion.TasksCompleted, completion.Duration)
		}
		return nil
	},
}

func init() {
	installCmd.Flags().StringP("file", "f", "", "Installation manifest (yaml)")
	installCmd.MarkFlagRequired("file")

	syncCmd.Flags().Bool("detach", false, "Start the sync and return without waiting")
}
