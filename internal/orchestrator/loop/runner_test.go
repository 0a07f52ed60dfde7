package loop

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/ledger"
	"github.com/codefionn/flagrunner/internal/llm/llmtest"
	"github.com/codefionn/flagrunner/internal/orchestrator"
	"github.com/codefionn/flagrunner/internal/progress"
	"github.com/codefionn/flagrunner/internal/prompts"
	"github.com/codefionn/flagrunner/internal/tasktree"
)

var _ Controller = (*orchestrator.Controller)(nil)

func newController(t *testing.T, client *llmtest.Client) *orchestrator.Controller {
	t.Helper()
	tree := tasktree.New("Warmed Up", filepath.Join(t.TempDir(), "task_tree.json"))
	return orchestrator.New(client, tree, orchestrator.WithChallenge(prompts.Challenge{Title: "Warmed Up", Category: "General Skills"}))
}

func rejectOnly(bad ...string) flag.ConfirmerFunc {
	return func(_ context.Context, candidate string) (bool, error) {
		for _, b := range bad {
			if b == candidate {
				return false, nil
			}
		}
		return true, nil
	}
}

func TestRunStopsAtRoundBudget(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("still working")))
	runner := NewRunner(ctl)

	result, err := runner.Run(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.True(t, result.HitRoundLimit)
	assert.Equal(t, 30, result.RoundsExecuted)
	assert.Equal(t, "round budget exhausted", result.TerminationReason)
	assert.Equal(t, 30, ctl.Ledger().Len())
}

func TestRunUsesInitialPrompt(t *testing.T) {
	client := llmtest.New(llmtest.Text("picoCTF{quick_win}"))
	ctl := newController(t, client)

	_, err := NewRunner(ctl).Run(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(client.Requests()[0].Messages[0].Content, "# Challenge: Warmed Up"))
}

func TestRunAcceptsFlag(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("converting 0x3D"), llmtest.Text("The flag is picoCTF{0x3d_61}")))

	result, err := NewRunner(ctl).Run(context.Background(), "start")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.Verified)
	assert.Equal(t, "picoCTF{0x3d_61}", result.Flag)
	assert.Equal(t, 2, result.RoundsExecuted)
	assert.Equal(t, "flag accepted", result.TerminationReason)
}

func TestRejectionIsFedBackAsHumanInput(t *testing.T) {
	client := llmtest.New(llmtest.Text("Got it: picoCTF{wrong_guess}"), llmtest.Text("Retried: picoCTF{right_one}"))
	ctl := newController(t, client)
	runner := NewRunner(ctl, WithValidator(flag.NewValidator(rejectOnly("picoCTF{wrong_guess}"))))

	result, err := runner.Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, "picoCTF{right_one}", result.Flag)
	assert.Equal(t, []string{"picoCTF{wrong_guess}"}, result.Rejected)

	assert.Equal(t, flag.RejectionFeedback("picoCTF{wrong_guess}"), client.LastInput())
	rounds := ctl.Ledger().Rounds()
	require.Len(t, rounds, 2)
	assert.Equal(t, ledger.SourceHuman, rounds[1].Source)
}

func TestPlaceholdersAreNotOffered(t *testing.T) {
	calls := 0
	confirmer := flag.ConfirmerFunc(func(context.Context, string) (bool, error) {
		calls++
		return true, nil
	})
	ctl := newController(t, llmtest.New(llmtest.Text("Flags look like picoCTF{...} here")))
	runner := NewRunner(ctl, WithConfig(&Config{MaxRounds: 2}), WithValidator(flag.NewValidator(confirmer)))

	result, err := runner.Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
	assert.False(t, result.Success)
	assert.Empty(t, result.Flag)
}

func TestManualFlagEntry(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("no idea")))
	var asked []string
	human := HumanFunc(func(_ context.Context, prompt string) (string, error) {
		asked = append(asked, prompt)
		return " picoCTF{typed_in} ", nil
	})
	cfg := DefaultConfig()
	cfg.MaxRounds = 1

	result, err := NewRunner(ctl, WithConfig(cfg), WithHuman(human)).Run(context.Background(), "start")
	require.NoError(t, err)
	require.Len(t, asked, 1)
	assert.True(t, result.Success)
	assert.Equal(t, "picoCTF{typed_in}", result.Flag)
	assert.Contains(t, result.TerminationReason, "manually")
}

func TestManualFlagEntryRejectsBadFormat(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("no idea")))
	human := HumanFunc(func(context.Context, string) (string, error) { return "flag{nope}", nil })

	result, err := NewRunner(ctl, WithConfig(&Config{MaxRounds: 1, ManualFlagEntry: true}), WithHuman(human)).
		Run(context.Background(), "start")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Flag)
}

func TestAskHumanWhenStuck(t *testing.T) {
	client := llmtest.New(llmtest.Text("I need human input: which port?"), llmtest.Text("Connected, picoCTF{after_help}"))
	ctl := newController(t, client)
	asks := 0
	human := HumanFunc(func(context.Context, string) (string, error) {
		asks++
		return "the port is 1337", nil
	})

	result, err := NewRunner(ctl, WithHuman(human)).Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, 1, asks)
	assert.True(t, result.Success)

	assert.Equal(t, ctl.HumanFeedbackPrompt("the port is 1337"), client.LastInput())
	last, _ := ctl.Ledger().Last()
	assert.Equal(t, ledger.SourceHuman, last.Source)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("never")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewRunner(ctl).Run(ctx, "start")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.RoundsExecuted)
	assert.Equal(t, "terminated by external signal", result.TerminationReason)
}

func TestRunReportsProgress(t *testing.T) {
	ctl := newController(t, llmtest.New(llmtest.Text("picoCTF{reported}")))
	var stages []progress.Stage
	cb := func(u progress.Update) error {
		stages = append(stages, u.Stage)
		return nil
	}

	_, err := NewRunner(ctl, WithProgress(cb)).Run(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, []progress.Stage{
		progress.StageRound, progress.StageResponse, progress.StageFlag, progress.StageVerdict, progress.StageDone,
	}, stages)
}
