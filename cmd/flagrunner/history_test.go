package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/flagrunner/internal/flag"
	"github.com/codefionn/flagrunner/internal/ledger"
	"github.com/codefionn/flagrunner/internal/store"
)

func TestPrintHistory(t *testing.T) {
	archive, err := store.Open(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	ctx := context.Background()
	require.NoError(t, archive.StartSession(ctx, store.SessionInfo{ID: "s1", Title: "Bit-O-Asm-1", Mode: "auto", StartedAt: time.Now()}))
	require.NoError(t, archive.RecordRound(ctx, "s1", ledger.Round{Number: 1, Input: "start", Output: "eax is 0x30", Source: ledger.SourceAgent, Timestamp: time.Now()}))
	require.NoError(t, archive.RecordRound(ctx, "s1", ledger.Round{Number: 2, Input: "go", Output: "Round 2 failed: timeout", Source: ledger.SourceAgent, Failed: true, Timestamp: time.Now()}))
	require.NoError(t, archive.RecordCandidate(ctx, "s1", flag.Candidate{Value: "picoCTF{0x30_48}", Round: 1}))
	require.NoError(t, archive.FinishSession(ctx, "s1", "picoCTF{0x30_48}", true))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(ctx)

	require.NoError(t, printHistory(cmd, archive, "s1"))
	text := out.String()
	assert.Contains(t, text, "Bit-O-Asm-1 (auto mode")
	assert.Contains(t, text, "Round 1 [agent]")
	assert.Contains(t, text, "Round 2 [agent] FAILED")
	assert.Contains(t, text, "Candidate (round 1): picoCTF{0x30_48}")
	assert.Contains(t, text, "Final flag: picoCTF{0x30_48} (verified: true)")

	assert.Error(t, printHistory(cmd, archive, "missing"))
}
