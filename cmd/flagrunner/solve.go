package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codefionn/flagrunner/internal/config"
	"github.com/codefionn/flagrunner/internal/contextopt"
	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/llm"
	"github.com/codefionn/flagrunner/internal/lockfile"
	"github.com/codefionn/flagrunner/internal/logger"
	"github.com/codefionn/flagrunner/internal/orchestrator"
	"github.com/codefionn/flagrunner/internal/orchestrator/loop"
	"github.com/codefionn/flagrunner/internal/progress"
	"github.com/codefionn/flagrunner/internal/prompts"
	"github.com/codefionn/flagrunner/internal/provider"
	"github.com/codefionn/flagrunner/internal/secretdetect"
	"github.com/codefionn/flagrunner/internal/store"
	"github.com/codefionn/flagrunner/internal/tasktree"
	"github.com/codefionn/flagrunner/internal/tools"
)

var (
	solveTitle      string
	solveCategory   string
	solvePromptFile string
	solveFiles      []string
	solveProvider   string
	solveModel      string
	solveMaxRounds  int
	solveMode       string
	solveNative     bool
	solveNoArchive  bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Work on a challenge until a flag is accepted or the round budget runs out",
	Long: `Solve runs the round loop against a single challenge.

The challenge description is read from --prompt-file ('-' reads stdin). In
hitl mode every flag candidate is confirmed on the terminal and the model can
ask the operator for help; in auto mode every non-placeholder candidate is
accepted.`,
	RunE: runSolve,
}

func init() {
	solveCmd.Flags().StringVar(&solveTitle, "title", "", "Challenge title")
	solveCmd.Flags().StringVar(&solveCategory, "category", "", "Challenge category")
	solveCmd.Flags().StringVar(&solvePromptFile, "prompt-file", "", "File with the challenge description ('-' for stdin)")
	solveCmd.Flags().StringSliceVar(&solveFiles, "file", nil, "Challenge file to mention in the initial prompt (repeatable)")
	solveCmd.Flags().StringVar(&solveProvider, "provider", "", "Model provider (anthropic, openai, deepseek, google)")
	solveCmd.Flags().StringVar(&solveModel, "model", "", "Model ID")
	solveCmd.Flags().IntVar(&solveMaxRounds, "max-rounds", 0, "Round budget (default from config)")
	solveCmd.Flags().StringVar(&solveMode, "mode", "", "auto or hitl")
	solveCmd.Flags().BoolVar(&solveNative, "native-tools", false, "Advertise tools through the provider's tool call API")
	solveCmd.Flags().BoolVar(&solveNoArchive, "no-archive", false, "Do not record rounds in the sqlite archive")
	rootCmd.AddCommand(solveCmd)
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Model.Provider = solveProvider
	}
	if flags.Changed("model") {
		cfg.Model.Model = solveModel
	}
	if flags.Changed("max-rounds") && solveMaxRounds > 0 {
		cfg.MaxRounds = solveMaxRounds
	}
	if flags.Changed("mode") {
		cfg.Mode = solveMode
	}
	if flags.Changed("native-tools") {
		cfg.Model.NativeTools = solveNative
	}
	if solveNoArchive {
		cfg.Archive = false
	}
	return cfg, cfg.Validate()
}

func readDescription(path string, stdin io.Reader) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		data, err := io.ReadAll(stdin)
		return string(data), err
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt file: %w", err)
		}
		return string(data), nil
	}
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.InitFromEnv(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to initialize logger: %v\n", err)
	}
	defer logger.Global().Close()

	description, err := readDescription(solvePromptFile, cmd.InOrStdin())
	if err != nil {
		return err
	}
	challenge := prompts.Challenge{
		Title:       strings.TrimSpace(solveTitle),
		Category:    strings.TrimSpace(solveCategory),
		Description: strings.TrimSpace(description),
		Files:       solveFiles,
	}
	if challenge.Title == "" {
		challenge.Title = "Unknown Challenge"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := provider.NewClient(ctx, cfg.Model)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()
	sessionDir := cfg.SessionDir(challenge.Title)
	log := logger.Global().WithPrefix("solve")
	log.Info("session %s: %q with %s/%s in %s mode", sessionID, challenge.Title, cfg.Model.Provider, client.GetModelName(), cfg.Mode)

	lock := lockfile.New(filepath.Join(sessionDir, "solve.lock"))
	if err := lock.TryAcquire(sessionID); err != nil {
		return err
	}
	defer lock.Release()

	tree := tasktree.New(challenge.Title, filepath.Join(sessionDir, "task_tree.json"))
	if found, err := tree.Load(); err != nil {
		log.Warn("ignoring unreadable task tree: %v", err)
	} else if found {
		log.Info("resuming task tree with %d tasks", tree.Len())
	}

	registry := tools.DefaultRegistry(tools.BuiltinOptions{
		EnableCommand: cfg.Tools.EnableCommand,
		Shell:         cfg.Tools.Shell,
		WorkingDir:    cfg.Tools.WorkingDir,
		Timeout:       cfg.ToolTimeout(),
	})

	opts := []orchestrator.Option{
		orchestrator.WithRegistry(registry),
		orchestrator.WithChallenge(challenge),
		orchestrator.WithToolTimeout(cfg.ToolTimeout()),
		orchestrator.WithNativeTools(cfg.Model.NativeTools),
		orchestrator.WithGeneration(cfg.Model.Temperature, cfg.Model.MaxTokens),
		orchestrator.WithTokenCounter(llm.NewTiktokenCounter(cfg.Model.Model)),
		orchestrator.WithOptimizer(contextopt.New(contextopt.Config{
			FullContextInterval: cfg.Context.FullContextInterval,
			MaxRecentTasks:      cfg.Context.MaxRecentTasks,
		})),
		orchestrator.WithLimits(orchestrator.Limits{
			TokenCeiling:  cfg.Context.TokenCeiling,
			MaxInputChars: cfg.Context.MaxInputChars,
			HistoryKeep:   cfg.Context.HistoryKeep,
		}),
	}

	var archive *store.Archive
	if cfg.Archive {
		secrets := secretdetect.New()
		secrets.AddLiteral("configured API key", cfg.Model.APIKey)
		secrets.AddLiteral("provider API key", provider.ResolveAPIKey(cfg.Model.Provider))
		archive, err = store.Open(cfg.ArchivePath(), store.WithRedactor(secrets))
		if err != nil {
			log.Warn("archive disabled: %v", err)
		} else {
			defer archive.Close()
			info := store.SessionInfo{ID: sessionID, Title: challenge.Title, Mode: cfg.Mode, StartedAt: time.Now()}
			if err := archive.StartSession(ctx, info); err != nil {
				log.Warn("failed to record session start: %v", err)
			}
			opts = append(opts, orchestrator.WithArchive(archive, sessionID))
		}
	}

	ctl := orchestrator.New(client, tree, opts...)

	hitl := cfg.Mode == "hitl"
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if hitl && !interactive {
		log.Warn("stdin is not a terminal, confirming candidates automatically")
	}

	runCfg := &loop.Config{MaxRounds: cfg.MaxRounds}
	runnerOpts := []loop.RunnerOption{
		loop.WithConfig(runCfg),
		loop.WithProgress(printProgress(cmd.OutOrStdout(), cmd.ErrOrStderr())),
	}
	if hitl && interactive {
		console := newConsole(os.Stdin, cmd.ErrOrStderr())
		runCfg.AskHumanWhenStuck = true
		runCfg.ManualFlagEntry = true
		runnerOpts = append(runnerOpts,
			loop.WithValidator(flag.NewValidator(console)),
			loop.WithHuman(console),
		)
	} else {
		runnerOpts = append(runnerOpts, loop.WithValidator(flag.NewValidator(flag.AcceptAll)))
	}

	result, runErr := loop.NewRunner(ctl, runnerOpts...).Run(ctx, "")
	if result == nil {
		return runErr
	}

	final := orchestrator.Final{Mode: cfg.Mode, Flag: result.Flag, Verified: result.Verified}
	summaryPath := filepath.Join(sessionDir, "summary-"+sessionID+".json")
	if err := ctl.SaveSummary(summaryPath, final); err != nil {
		log.Warn("failed to save summary: %v", err)
	}
	if archive != nil {
		if err := archive.FinishSession(context.WithoutCancel(ctx), sessionID, result.Flag, result.Verified); err != nil {
			log.Warn("failed to record session end: %v", err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSession %s: %s after %d rounds\n", sessionID, result.TerminationReason, result.RoundsExecuted)
	if result.Flag != "" {
		fmt.Fprintf(out, "Flag: %s (verified: %t)\n", result.Flag, result.Verified)
	}
	fmt.Fprintf(out, "Summary: %s\n", summaryPath)

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

// printProgress streams transcript updates to out and status updates to status.
func printProgress(out, status io.Writer) progress.Callback {
	return func(u progress.Update) error {
		switch {
		case u.ShouldStatus():
			_, err := fmt.Fprintf(status, "== %s\n", strings.TrimSpace(u.Message))
			return err
		case u.ShouldStream():
			_, err := fmt.Fprint(out, u.Message)
			return err
		}
		return nil
	}
}
