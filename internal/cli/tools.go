package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewToolsCmd creates the "tools" subcommand.
func NewToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered enrichment tools",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}

	addConfigFlags(cmd)
	cmd.Flags().Bool("remote", false, "List the tools offered by the MCP endpoint instead")

	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	remote, _ := cmd.Flags().GetBool("remote")

	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer closeApp(app)

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	if remote {
		if app.MCP == nil {
			return exitError(exitConfig, "no MCP endpoint configured")
		}
		remoteTools, err := app.MCP.ListTools(cmd.Context())
		if err != nil {
			return exitError(exitRuntime, "listing MCP tools: %v", err)
		}
		fmt.Fprintln(writer, "NAME\tDESCRIPTION")
		for _, t := range remoteTools {
			fmt.Fprintf(writer, "%s\t%s\n", t.Name, orDash(t.Description))
		}
		return writer.Flush()
	}

	fmt.Fprintln(writer, "NAME\tIDEMPOTENT\tTAGS\tDESCRIPTION")
	for _, d := range app.Registry.List() {
		fmt.Fprintf(writer, "%s\t%t\t%s\t%s\n", d.Name, d.Idempotent, orDash(strings.Join(d.Tags, ",")), orDash(d.Description))
	}
	return writer.Flush()
}

func closeApp(app *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = app.Close(ctx)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
