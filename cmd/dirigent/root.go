package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dirigent-dev/dirigent/agentloop"
	"github.com/dirigent-dev/dirigent/config"
	"github.com/dirigent-dev/dirigent/console"
	"github.com/dirigent-dev/dirigent/llmclient"
)

const (
	exitDone    = 0
	exitFailed  = 2
	exitAborted = 3
)

var (
	flagConfig     string
	flagModel      string
	flagProvider   string
	flagTargetDir  string
	flagTask       string
	flagTranscript string
	flagMaxTurns   int
	flagDebug      bool
	flagNoStream   bool
)

var rootCmd = &cobra.Command{
	Use:   "dirigent",
	Short: "LLM-driven terminal task agent",
	Long: `dirigent runs an LLM in a turn-based loop against a confined
workspace directory, letting it read, search, edit, and run shell commands
until the task is done or the turn budget is exhausted.

One-shot:
  dirigent --task "add error handling to main.go" --target-dir ./project

Interactive (reads tasks from stdin until "exit"):
  dirigent --target-dir ./project`,
	SilenceUsage: true,
	RunE:         runRoot,
}

// runExit carries the agent run outcome out of the cobra handler so deferred
// cleanup still executes before the process exits.
var runExit int

// Execute runs the CLI, translating run outcomes into exit codes.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(runExit)
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.Flags().StringVar(&flagModel, "model", "", "model identifier (overrides config)")
	rootCmd.Flags().StringVar(&flagProvider, "provider", "", "provider name: anthropic, openai, or any gollm-supported backend")
	rootCmd.Flags().StringVar(&flagTargetDir, "target-dir", ".", "workspace directory the agent is confined to")
	rootCmd.Flags().StringVar(&flagTask, "task", "", "task to run; omit for interactive mode")
	rootCmd.Flags().StringVar(&flagTranscript, "transcript", "", "write conversation JSON to this path after the run")
	rootCmd.Flags().IntVar(&flagMaxTurns, "max-turns", 0, "turn budget (overrides config)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "verbose logging and tool output")
	rootCmd.Flags().BoolVar(&flagNoStream, "no-stream", false, "disable token streaming")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	// Credentials commonly live in a local .env; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	ws, err := agentloop.NewWorkspace(flagTargetDir)
	if err != nil {
		return fmt.Errorf("target dir: %w", err)
	}
	env := agentloop.NewLocalEnvironment(ws)

	registry := agentloop.NewRegistry(cfg.MaxConcurrentTools)
	if err := agentloop.RegisterCoreTools(registry, env, cfg.ShellDefaultTimeoutMs, cfg.ShellMaxTimeoutMs); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagTask != "" {
		result := runTask(ctx, cfg, client, registry, env, logger, flagTask)
		runExit = exitCode(result)
		return nil
	}

	fmt.Printf("dirigent: model %s, workspace %s (type a task, or \"exit\")\n", cfg.Model, ws.Root())
	return runInteractive(ctx, cfg, client, registry, env, logger)
}

func applyFlags(cfg *config.Config) {
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagMaxTurns > 0 {
		cfg.MaxTurns = flagMaxTurns
	}
	if flagTranscript != "" {
		cfg.TranscriptPath = flagTranscript
	}
	if flagDebug {
		cfg.Debug = true
	}
	if flagNoStream {
		cfg.Stream = false
	}
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}

// buildClient wires provider adapters. The native Anthropic and OpenAI
// adapters are always registered; any other configured provider goes through
// the gollm backend. Missing credentials are not an error here: the first
// completion attempt reports Unauthorized.
func buildClient(cfg config.Config, logger *zap.Logger) (*llmclient.Client, error) {
	opts := []llmclient.ClientOption{
		llmclient.WithProvider(llmclient.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_BASE_URL"))),
		llmclient.WithProvider(llmclient.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_BASE_URL"))),
		llmclient.WithDefaultProvider("anthropic"),
		llmclient.WithRetry(llmclient.DefaultRetryPolicy()),
		llmclient.WithLogger(logger),
	}

	if cfg.Provider != "" && cfg.Provider != "anthropic" && cfg.Provider != "openai" {
		adapter, err := llmclient.NewGollmAdapter(cfg.Provider, providerAPIKey(cfg.Provider),
			llmclient.WithGollmModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", cfg.Provider, err)
		}
		opts = append(opts, llmclient.WithProvider(adapter), llmclient.WithDefaultProvider(cfg.Provider))
	}

	return llmclient.NewClient(opts...), nil
}

func providerAPIKey(provider string) string {
	return os.Getenv(strings.ToUpper(provider) + "_API_KEY")
}

// runTask executes a single agent run with a fresh bus and console consumer.
func runTask(ctx context.Context, cfg config.Config, client *llmclient.Client,
	registry *agentloop.Registry, env agentloop.Environment, logger *zap.Logger, task string) agentloop.Result {

	bus := agentloop.NewBus(cfg.EventBufferSize)
	events := bus.Subscribe()

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		console.New(os.Stdout, cfg.Debug).Consume(events)
	}()

	runner := agentloop.NewRunner(client, registry, bus, env,
		agentloop.WithModel(cfg.Model),
		agentloop.WithProviderName(cfg.Provider),
		agentloop.WithMaxTurns(cfg.MaxTurns),
		agentloop.WithStreaming(cfg.Stream),
		agentloop.WithTruncationLimits(cfg.CharLimits(), nil),
		agentloop.WithRunnerLogger(logger),
	)

	result := runner.Run(ctx, task)
	bus.Close()
	<-consoleDone

	if cfg.TranscriptPath != "" {
		if err := writeTranscript(cfg.TranscriptPath, env, result.Conversation); err != nil {
			logger.Warn("transcript not written", zap.Error(err))
		}
	}
	return result
}

// runInteractive reads tasks from stdin, one per line, until "exit" or EOF.
func runInteractive(ctx context.Context, cfg config.Config, client *llmclient.Client,
	registry *agentloop.Registry, env agentloop.Environment, logger *zap.Logger) error {

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		task := strings.TrimSpace(scanner.Text())
		switch task {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		result := runTask(ctx, cfg, client, registry, env, logger, task)
		if result.State == agentloop.StateAborted {
			// Ctrl-C aborted the run and cancelled the root context; a new
			// run could not make a model call, so stop here.
			return nil
		}
	}
}

// writeTranscript persists the conversation JSON. A relative path lands in
// the workspace so the transcript stays next to the work.
func writeTranscript(path string, env agentloop.Environment, conv *agentloop.Conversation) error {
	if conv == nil {
		return fmt.Errorf("no conversation to write")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(env.WorkingDirectory(), path)
	}
	data, err := conv.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func exitCode(result agentloop.Result) int {
	switch result.State {
	case agentloop.StateDone:
		return exitDone
	case agentloop.StateAborted:
		return exitAborted
	default:
		return exitFailed
	}
}
