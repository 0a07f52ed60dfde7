// Package llmtest provides a scripted llm.Client for tests.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/codefionn/flagrunner/internal/llm"
)

// Reply is one scripted answer. Panic makes the call panic with its value.
type Reply struct {
	Content   string
	ToolCalls []llm.ToolCall
	Err       error
	Panic     interface{}
}

// Text is a shorthand for a plain text reply.
func Text(content string) Reply { return Reply{Content: content} }

// Client replays replies in order and records every request. Once the
// script is exhausted it repeats the last reply.
type Client struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*llm.CompletionRequest
}

// New creates a scripted client.
func New(replies ...Reply) *Client {
	return &Client{replies: replies}
}

func (c *Client) next(req *llm.CompletionRequest) Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return Reply{Err: fmt.Errorf("no scripted reply")}
	}
	r := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return r
}

func (c *Client) CompleteWithRequest(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	r := c.next(req)
	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return &llm.CompletionResponse{Content: r.Content, ToolCalls: r.ToolCalls, StopReason: "end_turn"}, nil
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.CompleteWithRequest(ctx, &llm.CompletionRequest{
		Messages: []*llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (c *Client) GetModelName() string { return "scripted" }

// Requests returns the requests seen so far.
func (c *Client) Requests() []*llm.CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*llm.CompletionRequest(nil), c.requests...)
}

// LastInput returns the content of the final message of the last request.
func (c *Client) LastInput() string {
	reqs := c.Requests()
	if len(reqs) == 0 || len(reqs[len(reqs)-1].Messages) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	return msgs[len(msgs)-1].Content
}
