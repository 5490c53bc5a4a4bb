package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fangwatch/fangwatch/internal/history"
	"github.com/fangwatch/fangwatch/internal/logger"
	"github.com/fangwatch/fangwatch/internal/pipeline"
	"github.com/fangwatch/fangwatch/pkg/metric"
	"github.com/fangwatch/fangwatch/pkg/renderer"
	"github.com/fangwatch/fangwatch/pkg/strategy"
)

// defaultStrategyOrder ranks strategies most-reliable first; regex is the
// zero-cost floor.
var defaultStrategyOrder = []string{"gemini-ocr", "claude-vision", "openai-text", "regex"}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect today's indicators into the history file",
	Long: `Collect renders the source pages, extracts each metric group through
the strategy chain, and upserts one record for today into the history.

A record that already exists for today is left untouched unless --force
is given. Groups whose extraction fails entirely are persisted with null
fields; only configuration and persistence errors fail the run.`,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	flags := collectCmd.Flags()

	flags.BoolP("force", "f", false, "re-collect and overwrite today's record")
	flags.String("data", filepath.Join("data", "history", "data.json"), "history file path")
	flags.Duration("interval", 5*time.Second, "minimum idle time between page requests")
	flags.Duration("timeout", 30*time.Second, "page render timeout")
	flags.String("groups", "", "JSON/YAML file overriding the built-in group definitions")
	flags.StringSlice("strategies", defaultStrategyOrder, "strategy priority order")
	flags.Bool("debug-artifacts", false, "save page screenshots next to the history file")
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dataPath, _ := cmd.Flags().GetString("data")
	force, _ := cmd.Flags().GetBool("force")
	interval, _ := cmd.Flags().GetDuration("interval")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	groupsPath, _ := cmd.Flags().GetString("groups")
	order, _ := cmd.Flags().GetStringSlice("strategies")
	debugArtifacts, _ := cmd.Flags().GetBool("debug-artifacts")

	groups := metric.DefaultGroups()
	if groupsPath != "" {
		var err error
		groups, err = metric.GroupsFromFile(groupsPath)
		if err != nil {
			logger.Error("failed to load group definitions", "path", groupsPath, "error", err)
			return err
		}
	}

	chain, err := buildChain(order)
	if err != nil {
		logger.Error("failed to build strategy chain", "error", err)
		return err
	}

	// Credential preflight: fail before any network I/O if nothing in the
	// chain can run.
	if !chain.Available() {
		logger.Error("no extraction strategy available",
			"hint", "set GEMINI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY, or include the regex strategy")
		return strategy.ErrNoStrategyAvailable
	}
	logger.Debug("strategy chain built", "chain", chain.Name())

	rend, err := renderer.NewChrome(renderer.ChromeConfig{Timeout: timeout})
	if err != nil {
		logger.Error("failed to create renderer", "error", err)
		return err
	}
	defer func() { _ = rend.Close() }()

	artifactDir := ""
	if debugArtifacts {
		artifactDir = filepath.Dir(dataPath)
	}

	driver, err := pipeline.New(pipeline.Config{
		Store:              history.NewStore(dataPath),
		Renderer:           rend,
		Chain:              chain,
		Groups:             groups,
		MinRequestInterval: interval,
		Force:              force,
		ArtifactDir:        artifactDir,
		RenderTimeout:      timeout,
	})
	if err != nil {
		logger.Error("failed to create pipeline", "error", err)
		return err
	}

	result, err := driver.Run(ctx)
	if err != nil {
		logger.Error("run failed", "error", err)
		return err
	}

	if result.Outcome == history.Skipped {
		logInfo("record for today already exists, skipped (use --force to overwrite)")
		return nil
	}

	out, err := json.MarshalIndent(result.Record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render record: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	logInfo("record %s saved to %s", result.Outcome.String(), dataPath)
	return nil
}

// buildChain creates the strategies named in the priority order. Strategies
// missing credentials are still added; the chain skips unavailable entries
// at run time and Available() reports whether anything can run.
func buildChain(order []string) (*strategy.Chain, error) {
	var strategies []strategy.Strategy

	for _, name := range order {
		switch name {
		case "gemini-ocr":
			strategies = append(strategies, strategy.NewGeminiOCR(strategy.BackendConfig{
				APIKey: viper.GetString("gemini_api_key"),
				Model:  viper.GetString("gemini_model"),
			}))
		case "claude-vision":
			strategies = append(strategies, strategy.NewClaudeVision(strategy.BackendConfig{
				APIKey: viper.GetString("anthropic_api_key"),
				Model:  viper.GetString("anthropic_model"),
			}))
		case "openai-text":
			strategies = append(strategies, strategy.NewOpenAIText(strategy.BackendConfig{
				APIKey: viper.GetString("openai_api_key"),
				Model:  viper.GetString("openai_model"),
			}))
		case "regex":
			strategies = append(strategies, strategy.NewRegex())
		default:
			return nil, fmt.Errorf("unknown strategy: %s", name)
		}
	}

	if len(strategies) == 0 {
		return nil, fmt.Errorf("empty strategy order")
	}
	return strategy.NewChain(strategies...), nil
}
