// Package commands implements the CLI commands for fangwatch.
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "fangwatch",
	Short: "Daily Shanghai real-estate indicator collector",
	Long: `Fangwatch collects daily transaction indicators from the Shanghai
online real-estate exchange (fangdi.com.cn) and appends them to a local
JSON history, one record per calendar day.

Extraction degrades gracefully across a chain of strategies: Gemini OCR
over a page screenshot, Claude vision, a text model over the rendered
text, and plain regex matching as the floor.

Examples:
  # Collect today's record
  fangwatch collect

  # Re-collect and overwrite today's record
  fangwatch collect --force

  # Custom history location and request spacing
  fangwatch collect --data ./data/history/data.json --interval 10s`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default $HOME/.fangwatch.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	// Credentials may live in a local .env file
	_ = godotenv.Load()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".fangwatch")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FANGWATCH")
	viper.AutomaticEnv()

	// Backend credentials come from their vendors' conventional env vars
	_ = viper.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = viper.BindEnv("anthropic_api_key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("openai_api_key", "OPENAI_API_KEY")

	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
