// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autopilot/internal/config"
	"github.com/xkilldash9x/autopilot/internal/observability"
)

const (
	envPrefix         = "AUTOPILOT"
	defaultConfigName = "autopilot"
)

// rootOptions is the state shared by one command tree: the --config flag and
// the viper instance every subcommand binds its flags to.
type rootOptions struct {
	cfgFile string
	v       *viper.Viper
}

// NewRootCommand builds a fresh command tree. Each tree owns its own viper
// instance, so flags from one interactive command never leak into the next.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "autopilot",
		Short:        "Autopilot drives a browser toward a goal using a computer-use model.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Configuration loaded.",
				zap.String("version", Version),
				zap.String("config_file", opts.v.ConfigFileUsed()))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./autopilot.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(opts),
		newBatchCmd(opts),
		newLogsCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree selected by os.Args under ctx.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		observability.GetLogger().Warn("Command aborted by signal.")
	}
	observability.Sync()
	return err
}

// load reads the config file and environment into opts.v and resolves the
// configuration.
func (o *rootOptions) load() (*config.Config, error) {
	config.SetDefaults(o.v)

	if o.cfgFile != "" {
		o.v.SetConfigFile(o.cfgFile)
	} else {
		o.v.AddConfigPath(".")
		o.v.SetConfigName(defaultConfigName)
		o.v.SetConfigType("yaml")
	}

	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	o.v.AutomaticEnv()

	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return o.resolve()
}

// resolve builds the configuration from the current viper state, including
// any flags a subcommand bound after load.
func (o *rootOptions) resolve() (*config.Config, error) {
	return config.NewConfigFromViper(o.v)
}

// bindFlags binds command flags to config keys.
func (o *rootOptions) bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for flag, key := range keys {
		if err := o.v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return nil
}
