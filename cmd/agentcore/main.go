// Command agentcore is a thin CLI that wires a provider driver, a session
// tree, and a tool registry into a running Agent. Transport (how prompts
// arrive and responses are delivered to a user) is an external
// collaborator; this binary only demonstrates and exercises the core.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/streamloop/agentcore/internal/agent"
	"github.com/streamloop/agentcore/internal/circuit"
	"github.com/streamloop/agentcore/internal/contextenv"
	"github.com/streamloop/agentcore/internal/poller"
	"github.com/streamloop/agentcore/internal/providers"
	"github.com/streamloop/agentcore/internal/ratelimit"
	"github.com/streamloop/agentcore/internal/runtimeconfig"
	"github.com/streamloop/agentcore/internal/sessiontree"
	"github.com/streamloop/agentcore/internal/skills"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "agentcore",
		Short: "Run an agentcore session against a single configured provider",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "agentcore.yaml", "Path to YAML configuration file")

	root.AddCommand(buildChatCmd(&configPath))
	return root
}

func buildChatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive stdin/stdout chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), *configPath)
		},
	}
}

func runChat(ctx context.Context, configPath string) error {
	cfg, err := runtimeconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("agentcore: %w", err)
	}

	log := newLogger(cfg.Logging)

	driver, err := buildDriver(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("agentcore: %w", err)
	}
	driver = guardDriver(cfg, driver)

	tree := sessiontree.New()
	registry := agent.NewRegistry()

	ag := agent.New(agent.Config{
		Model:         cfg.Model.Model,
		ThinkingLevel: cfg.Model.ThinkingLevel,
		Driver:        driver,
		Tree:          tree,
		Tools:         registry,
		Prices:        cfg.BuildPriceTable(),
		Log:           log,
	})

	ag.Subscribe(func(ev agent.Event) {
		switch ev.Kind {
		case agent.EventMessageDelta:
			fmt.Print(ev.DeltaText)
		case agent.EventTurnEnd:
			fmt.Println()
			if ev.Err != nil {
				fmt.Fprintln(os.Stderr, "turn ended with error:", ev.Err)
			}
		}
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, stopSkills, err := setupSkills(cfg.Skills, ag, tree, log)
	if err != nil {
		return fmt.Errorf("agentcore: %w", err)
	}
	if stopSkills != nil {
		defer stopSkills()
	}

	if cfg.Poller.Enabled {
		p, err := buildPoller(cfg.Poller, ag, log)
		if err != nil {
			return fmt.Errorf("agentcore: %w", err)
		}
		p.Start(ctx)
		defer p.Stop()
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		text := scanner.Text()
		if text == "" {
			continue
		}
		if err := ag.Prompt(ctx, text, nil); err != nil {
			fmt.Fprintln(os.Stderr, "prompt failed:", err)
		}
	}
	return scanner.Err()
}

func buildDriver(ctx context.Context, cfg *runtimeconfig.Config, log *slog.Logger) (providers.Driver, error) {
	switch cfg.Model.Provider {
	case "anthropic":
		return providers.NewAnthropicDriver(providers.AnthropicConfig{
			APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
			BaseURL:      cfg.Providers.Anthropic.BaseURL,
			DefaultModel: cfg.Model.Model,
			Log:          log,
		})
	case "openai":
		return providers.NewOpenAIDriver(providers.OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: cfg.Providers.OpenAI.BaseURL,
			Log:     log,
		})
	case "bedrock":
		return providers.NewBedrockDriver(ctx, providers.BedrockConfig{
			Region:          cfg.Providers.Bedrock.Region,
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Log:             log,
		})
	case "google":
		return providers.NewGoogleDriver(ctx, providers.GoogleConfig{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Log:    log,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Model.Provider)
	}
}

// guardDriver wraps driver with a rate limiter and circuit breaker named
// after the configured provider, so every outbound call the CLI makes is
// throttled and tripped the same way a production deployment's would be.
func guardDriver(cfg *runtimeconfig.Config, driver providers.Driver) providers.Driver {
	limiter := ratelimit.New(ratelimit.Config{
		MaxRequests: cfg.RateLimit.MaxRequests,
		Window:      cfg.RateLimit.Window,
		MinInterval: cfg.RateLimit.MinInterval,
	})
	breaker := circuit.New(circuit.Config{
		Name:             cfg.Model.Provider,
		FailureThreshold: cfg.Circuit.FailureThreshold,
		SuccessThreshold: cfg.Circuit.SuccessThreshold,
		Timeout:          cfg.Circuit.Timeout,
	})
	return providers.NewGuardedDriver(driver, limiter, breaker)
}

// agentDispatcher adapts *agent.Agent to poller.Dispatcher, whose
// Prompt signature takes attachments as an opaque any so the poller
// package never needs to import pkg/models.
type agentDispatcher struct {
	agent *agent.Agent
}

func (d agentDispatcher) Prompt(ctx context.Context, text string, attachments any) error {
	return d.agent.Prompt(ctx, text, nil)
}

func buildPoller(cfg runtimeconfig.PollerConfig, ag *agent.Agent, log *slog.Logger) (*poller.Poller, error) {
	store := poller.NewMemoryStore()
	return poller.New(store, ag, agentDispatcher{agent: ag}, poller.Config{
		TickInterval:     cfg.TickInterval,
		Schedule:         cfg.Schedule,
		BatchLimit:       cfg.BatchLimit,
		BackoffFactor:    cfg.BackoffFactor,
		BackoffCap:       cfg.BackoffCap,
		FailureThreshold: cfg.FailureThreshold,
	}, poller.WithLogger(log))
}

// setupSkills wires skill discovery into ag's system prompt: an initial
// Reload compiles the starting envelope, and (if cfg.Watch is set) an
// fsnotify.Watcher keeps it current as SKILL.md files change on disk. It
// returns a nil Manager and a nil stop func when cfg.Dir is unset, since
// a binary with nothing to discover shouldn't pay for a watcher.
func setupSkills(cfg runtimeconfig.SkillsConfig, ag *agent.Agent, tree *sessiontree.Tree, log *slog.Logger) (*skills.Manager, func(), error) {
	if cfg.Dir == "" {
		return nil, nil, nil
	}

	sink := skills.NewEnvelopeSink(contextenv.Envelope{}, tree)
	manager := skills.NewManager(skills.NewFSDiscoverer(cfg.Dir), sink, log)
	manager.OnChange(func(skills.ChangeEvent) {
		ag.SetSystemPrompt(sink.Envelope().System)
	})

	if _, err := manager.Reload("startup"); err != nil {
		return nil, nil, fmt.Errorf("skills: initial discovery: %w", err)
	}
	ag.SetSystemPrompt(sink.Envelope().System)

	if !cfg.Watch {
		return manager, nil, nil
	}

	watcher, err := skills.WatchDir(cfg.Dir, manager, cfg.Debounce, log)
	if err != nil {
		return nil, nil, fmt.Errorf("skills: watch %s: %w", cfg.Dir, err)
	}
	return manager, func() { watcher.Close() }, nil
}

func newLogger(cfg runtimeconfig.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
