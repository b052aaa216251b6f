package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/Aleph-Alpha/lexgraph/v1/config"
)

var rootCmd = &cobra.Command{
	Use:   "lexgraph",
	Short: "Representation and retrieval engine for legal documents",
	Long: `lexgraph embeds legal documents, answers hybrid similarity queries,
clusters the corpus into a browsable 2-D map with topic labels and answers
questions about a single document from its own chunks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "dotenv files loaded before the configuration")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("env-file", rootCmd.PersistentFlags().Lookup("env-file"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	viper.SetEnvPrefix("lexgraph")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"), viper.GetStringSlice("env-file")...)
}

// runOnce builds an application from modules, fills targets, starts it,
// calls run and stops it again.
func runOnce(cmd *cobra.Command, modules func(*config.Config) fx.Option, run func(ctx context.Context) error, targets ...interface{}) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app := fx.New(modules(cfg), fx.Populate(targets...))
	if err := app.Err(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	runErr := run(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer stopCancel()
	return errors.Join(runErr, app.Stop(stopCtx))
}

func printResult(cmd *cobra.Command, v interface{}, plain func()) error {
	if viper.GetBool("json") {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	plain()
	return nil
}
