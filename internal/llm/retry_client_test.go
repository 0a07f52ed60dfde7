package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	block    bool
}

func (f *fakeClient) CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if call <= f.failures {
		return nil, f.err
	}
	return &CompletionResponse{Content: "ok"}, nil
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return completeOnce(ctx, f, prompt, 0)
}

func (f *fakeClient) GetModelName() string {
	return "fake"
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRetryClientRecoversFromTransientErrors(t *testing.T) {
	base := &fakeClient{failures: 2, err: errors.New("connection reset")}
	client := NewRetryClient(base, time.Second, 3, WithInitialBackoff(time.Millisecond))

	resp, err := client.CompleteWithRequest(context.Background(), &CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, base.callCount())
}

func TestRetryClientGivesUpAfterMaxRetries(t *testing.T) {
	base := &fakeClient{failures: 10, err: errors.New("503 upstream")}
	client := NewRetryClient(base, time.Second, 3, WithInitialBackoff(time.Millisecond))

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Equal(t, 4, base.callCount(), "one attempt plus three retries")
}

func TestRetryClientTimesOutEachAttempt(t *testing.T) {
	base := &fakeClient{block: true}
	client := NewRetryClient(base, 10*time.Millisecond, 1, WithInitialBackoff(time.Millisecond))

	start := time.Now()
	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, 2, base.callCount())
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryClientStopsOnCallerCancellation(t *testing.T) {
	base := &fakeClient{failures: 10, err: errors.New("flaky")}
	client := NewRetryClient(base, time.Second, 5, WithInitialBackoff(50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "hi")
	require.Error(t, err)
	assert.LessOrEqual(t, base.callCount(), 1)
}

func TestRetryClientNilBase(t *testing.T) {
	assert.Nil(t, NewRetryClient(nil, time.Second, 3))
}

func TestToolCallInput(t *testing.T) {
	tests := []struct {
		name string
		call ToolCall
		want string
	}{
		{"input field", ToolCall{Arguments: `{"input":"ls -la"}`}, "ls -la"},
		{"object input", ToolCall{Arguments: `{"input":{"action":"extract"}}`}, `{"action":"extract"}`},
		{"other fields", ToolCall{Arguments: `{"path":"/tmp"}`}, `{"path":"/tmp"}`},
		{"not json", ToolCall{Arguments: "raw text"}, "raw text"},
		{"empty", ToolCall{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.call.Input())
		})
	}
}

func TestEstimateTokenCount(t *testing.T) {
	assert.Equal(t, 0, EstimateTokenCount(""))
	assert.Equal(t, 1, EstimateTokenCount("abc"))
	assert.Equal(t, 25, EstimateTokenCount(string(make([]byte, 100))))
	assert.Equal(t, 2, EstimateCounter{}.Count("12345678"))
}
