// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
)

const envPrefix = "PROMPTPROBE"

// cliState is shared by the root command and its subcommands. The config is
// loaded once in PersistentPreRunE.
type cliState struct {
	v       *viper.Viper
	cfgFile string
	envFile string
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	state := &cliState{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "promptprobe",
		Short:         "Drives a chat UI in a headless browser and harvests tokens from the request it sends.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.load()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&state.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&state.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(
		newServeCmd(state),
		newRunCmd(state),
		newExtractCmd(state),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree with a signal-aware context and logs the
// failure, if any.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		observability.GetLogger().Debug("Command execution failed", zap.Error(err))
	}
	observability.Sync()
	return err
}

// load reads the dotenv file, the config file and the environment, then
// initializes the logger.
func (s *cliState) load() error {
	if err := loadDotEnv(s.envFile); err != nil {
		return err
	}

	config.SetDefaults(s.v)
	if err := initializeConfig(s.v, s.cfgFile); err != nil {
		return err
	}

	cfg, err := config.NewConfigFromViper(s.v)
	if err != nil {
		return err
	}
	s.cfg = cfg

	// Logs go to stderr so stdout stays clean for command output.
	observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
	observability.GetLogger().Debug("Configuration loaded.",
		zap.String("version", Version),
		zap.String("config_file", s.v.ConfigFileUsed()),
		zap.String("target", cfg.Target.URL),
	)
	return nil
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// loadDotEnv exports the variables in path without overriding ones already
// set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error loading env file %s: %w", path, err)
	}
	return nil
}
