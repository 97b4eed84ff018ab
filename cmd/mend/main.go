// mend is a build-repair loop for native projects: it runs the configured
// toolchain, parses the diagnostics out of a failed build, asks a reasoning
// service for a corrected file, applies it with a backup, and rebuilds until
// the project compiles or the attempt budget runs out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mend/internal/config"
	"mend/internal/llm"
	"mend/internal/logging"
	"mend/internal/loop"
	"mend/internal/patch"
	"mend/internal/repair"
	"mend/internal/store"
	"mend/internal/symbols"
	"mend/internal/toolchain"
)

const version = "0.1.0"

// Exit codes. Scripts drive retries off these, keep them stable.
const (
	exitSuccess   = 0
	exitFatal     = 1
	exitExhausted = 2
)

var (
	// Global flags
	projectDir  string
	configPath  string
	maxAttempts int
	verbose     bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "mend - iterative build repair for native projects",
	Long: `mend drives a native toolchain in a repair loop.

It configures and builds the project, classifies the first actionable
diagnostic (compile error, linker error, or neither), gathers the relevant
source context, requests a whole-file fix from a reasoning service, writes it
with a backup of the previous content, and builds again. The loop ends when
the build succeeds, the attempt budget is spent, or the environment itself is
broken.

Run without a subcommand to start a repair run in the current directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.Initialize(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runFix,
}

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Run the repair loop until the build succeeds or attempts run out",
	RunE:  runFix,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [symbol]",
	Short: "Search the project for a symbol's declaration and definition",
	Long: `Runs the linker-error symbol search standalone and reports where the
symbol is declared, whether any file defines it, and every file mentioning it.
Useful for checking what context a repair request for an undefined reference
would be built from.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mend version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mend %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "project", "p", ".", "project root to build and repair")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "mend.yaml", "path to the config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&maxAttempts, "max-attempts", 0, "override the configured repair attempt budget")

	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFatal)
	}
}

// loadConfig resolves the project root and loads the layered configuration.
// A config path relative to the project root is looked up there, so running
// mend from outside the project still finds the project's own mend.yaml.
func loadConfig() (*config.Config, string, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, "", fmt.Errorf("cannot resolve project directory: %w", err)
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, "", fmt.Errorf("project directory %s does not exist", root)
	}

	path := configPath
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if maxAttempts > 0 {
		cfg.Repair.MaxAttempts = maxAttempts
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, root, nil
}

func runFix(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	toolTimeout, err := cfg.ToolchainTimeout()
	if err != nil {
		return err
	}
	runner := toolchain.NewRunner(root, cfg.Toolchain.ConfigureCommand, cfg.Toolchain.BuildCommand, toolTimeout)

	client, err := llm.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	index := symbols.New(root, cfg.Repair.SourceExtensions, cfg.Repair.ExcludeDirs)
	builder := repair.NewBuilder(root, cfg.Repair, index)
	requester := repair.NewRequester(client, cfg.Repair.ContextBudget)
	applier := patch.NewApplier(root, cfg.Repair.BackupDir)

	var history *store.HistoryStore
	if cfg.Store.Enabled {
		dbPath := cfg.Store.DatabasePath
		if !filepath.IsAbs(dbPath) {
			dbPath = filepath.Join(root, dbPath)
		}
		history, err = store.Open(dbPath)
		if err != nil {
			// History is an audit trail, not a dependency of the loop.
			logging.StoreWarn("running without history: %v", err)
		} else {
			defer history.Close()
		}
	}

	ctrl := loop.New(runner, builder, requester, applier, index, history, root, cfg.Repair.MaxAttempts)
	result := ctrl.Run(ctx)

	fmt.Print(renderSummary(result))

	switch result.Outcome {
	case loop.OutcomeSucceeded:
		return nil
	case loop.OutcomeExhausted:
		os.Exit(exitExhausted)
	default:
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", result.Err)
		}
		os.Exit(exitFatal)
	}
	return nil
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadConfig()
	if err != nil {
		return err
	}

	index := symbols.New(root, cfg.Repair.SourceExtensions, cfg.Repair.ExcludeDirs)
	ref, err := index.Resolve(args[0])
	if err != nil {
		return err
	}

	fmt.Print(renderReference(root, ref))
	return nil
}
