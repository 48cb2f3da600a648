package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vkotenko/go-web-pilot/internal/agent"
	"github.com/vkotenko/go-web-pilot/internal/browser"
	"github.com/vkotenko/go-web-pilot/internal/config"
	"github.com/vkotenko/go-web-pilot/internal/executor"
	"github.com/vkotenko/go-web-pilot/internal/llm"
	"github.com/vkotenko/go-web-pilot/internal/observability"
	"github.com/vkotenko/go-web-pilot/internal/relay"
	"github.com/vkotenko/go-web-pilot/internal/schema"
)

type rootFlags struct {
	configPath string
	url        string
	goal       string
	model      string
	provider   string
	headless   bool
	maxSteps   int
	debug      bool
	stream     bool
	summary    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pilot",
		Short: "LLM-driven browser automation",
		Long: `pilot drives a browser toward a natural-language goal: it snapshots the
page, asks a model for the next action, executes it, and feeds the result
back until the model signals completion.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGoal(cmd.Context(), flags)
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to config file")
	cmd.PersistentFlags().StringVar(&flags.model, "model", "", "model name (overrides config)")
	cmd.PersistentFlags().StringVar(&flags.provider, "provider", "", "model provider: ollama or openai (overrides config)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.Flags().StringVar(&flags.url, "url", "", "start URL (required)")
	cmd.Flags().StringVar(&flags.goal, "goal", "", "natural-language goal (required)")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser headless")
	cmd.Flags().IntVar(&flags.maxSteps, "max-steps", 0, "iteration cap (overrides config)")
	cmd.Flags().BoolVar(&flags.stream, "stream", false, "stream model output to the console")
	cmd.Flags().BoolVar(&flags.summary, "summary", false, "ask the model for a run summary at the end")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("goal")

	cmd.AddCommand(newModelsCmd(flags))
	return cmd
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.model != "" {
		cfg.LLM.Model = flags.model
	}
	if flags.provider != "" {
		cfg.LLM.Provider = flags.provider
	}
	if flags.maxSteps > 0 {
		cfg.Agent.MaxSteps = flags.maxSteps
	}
	if flags.stream {
		cfg.LLM.Stream = true
	}
	if flags.debug {
		cfg.Logger.Level = "debug"
	}
	cfg.Browser.Headless = flags.headless
	return cfg, nil
}

func runGoal(ctx context.Context, flags *rootFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	observability.InitializeLogger(cfg.Logger)
	logger := observability.Logger()

	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return err
	}

	session, err := browser.NewSession(cfg.Browser, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Navigate(flags.url); err != nil {
		return err
	}

	exec := executor.New(session, logger)
	if err := exec.Establish(ctx); err != nil {
		logger.Warn("initial agent injection failed, relay will retry", zap.Error(err))
	}

	registry := relay.NewRegistry()
	targetID := session.TargetID()
	registry.Register(targetID, exec)
	defer registry.Unregister(targetID)

	loop := agent.NewLoop(client, relay.New(registry, cfg.Relay, logger), cfg.Agent, logger)
	loop.EnableStreaming(cfg.LLM.Stream)
	loop.SetObserver(agent.Observer{
		OnStatus: func(ev agent.StatusEvent) {
			marker := "ok"
			if ev.Status == schema.StatusError {
				marker = "err"
			}
			fmt.Printf("[%s] %s %s\n", marker, ev.Action, ev.Message)
		},
		OnStream: func(chunk string) {
			fmt.Print(chunk)
		},
	})

	sig := agent.NewSignalController(loop, logger)
	defer sig.Close()

	res, runErr := loop.Run(ctx, agent.RunSpec{
		TargetID: targetID,
		Goal:     flags.goal,
		Snapshot: session,
	})
	if res == nil {
		return runErr
	}

	printReport(res)

	if flags.summary {
		finalURL := ""
		if snap, snapErr := session.Snapshot(); snapErr == nil {
			finalURL = snap.URL
		}
		fmt.Println("\n--- SUMMARY ---")
		fmt.Println(agent.Summarize(ctx, client, res, finalURL))
	}

	switch res.Termination {
	case agent.TerminationDone, agent.TerminationAnswer:
		return nil
	default:
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("run ended with %s: %s", res.Termination, res.Message)
	}
}

func printReport(res *agent.RunResult) {
	fmt.Println("\n===== RUN REPORT =====")
	fmt.Printf("Goal:     %s\n", res.Goal)
	fmt.Printf("Result:   %s\n", res.Termination)
	fmt.Printf("Detail:   %s\n", res.Message)
	fmt.Printf("Steps:    %d\n", res.Steps)
	fmt.Printf("Duration: %s\n", res.Duration)
	if len(res.History) > 0 {
		fmt.Println("\n--- TRACE ---")
		for _, t := range res.History {
			fmt.Printf("%s: %s\n", t.Role, t.Content)
		}
	}
}

func newModelsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available at the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			observability.InitializeLogger(cfg.Logger)

			client, err := llm.New(cfg.LLM, observability.Logger())
			if err != nil {
				return err
			}
			names, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(os.Stdout, n)
			}
			return nil
		},
	}
}
