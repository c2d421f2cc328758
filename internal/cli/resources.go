package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pathforge/pathforge/core"
)

// NewResourcesCmd creates the "resources" subcommand.
func NewResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "List the resources exposed by the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE:  runResources,
	}

	addConfigFlags(cmd)
	cmd.Flags().String("mcp-endpoint", "", "MCP endpoint URL (default: from config)")

	return cmd
}

func runResources(cmd *cobra.Command, _ []string) error {
	endpoint, _ := cmd.Flags().GetString("mcp-endpoint")

	var extra []core.Option
	if endpoint != "" {
		extra = append(extra, core.WithMCPEndpoint(endpoint))
	}
	app, err := buildApp(cmd, extra...)
	if err != nil {
		return err
	}
	defer closeApp(app)

	if app.MCP == nil {
		return exitError(exitConfig, "no MCP endpoint configured; set mcp.endpoint or --mcp-endpoint")
	}
	if _, err := app.MCP.Initialize(cmd.Context()); err != nil {
		return exitError(exitRuntime, "initializing MCP session: %v", err)
	}
	resources, err := app.MCP.ListResources(cmd.Context())
	if err != nil {
		return exitError(exitRuntime, "listing MCP resources: %v", err)
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(writer, "URI\tNAME\tTYPE\tDESCRIPTION")
	for _, r := range resources {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", r.URI, orDash(r.Name), orDash(r.MimeType), orDash(r.Description))
	}
	return writer.Flush()
}
