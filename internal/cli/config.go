package cli

import (
	"github.com/spf13/cobra"

	"github.com/pathforge/pathforge/core"
)

// addConfigFlags registers the flags every command uses to build its
// configuration.
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "Path to a JSON or YAML config file")
	cmd.Flags().String("log-level", "", "Log level: debug | info | warn | error")
	cmd.Flags().Bool("verbose", false, "Enable debug logging")
}

// loadConfig builds the configuration from defaults, the environment, the
// config file and finally the command's own overrides.
func loadConfig(cmd *cobra.Command, extra ...core.Option) (*core.Config, error) {
	var opts []core.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, core.WithConfigFile(path))
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		opts = append(opts, core.WithLogLevel(level))
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		opts = append(opts, core.WithLogLevel("debug"))
	}
	opts = append(opts, extra...)

	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, exitError(exitConfig, "loading configuration: %v", err)
	}
	return cfg, nil
}

// buildApp loads the configuration and wires the application, with logs
// going to the command's error stream.
func buildApp(cmd *cobra.Command, extra ...core.Option) (*App, error) {
	cfg, err := loadConfig(cmd, extra...)
	if err != nil {
		return nil, err
	}
	app, err := NewApp(cmd.Context(), cfg, cmd.ErrOrStderr())
	if err != nil {
		if core.IsConfigurationError(err) {
			return nil, exitError(exitConfig, "initializing: %v", err)
		}
		return nil, exitError(exitRuntime, "initializing: %v", err)
	}
	return app, nil
}
