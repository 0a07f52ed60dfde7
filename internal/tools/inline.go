package tools

import "strings"

const (
	openTool   = "<tool>"
	closeTool  = "</tool>"
	openInput  = "<input>"
	closeInput = "</input>"
)

// HasInlineMarkup reports whether text contains at least one complete tool
// tag pair.
func HasInlineMarkup(text string) bool {
	return strings.Contains(text, openTool) && strings.Contains(text, closeTool)
}

// ParseInlineCalls extracts <tool>NAME</tool><input>PAYLOAD</input> calls
// from model text, left to right. A segment missing its closing tool tag or
// either input tag is skipped.
func ParseInlineCalls(text string) []Call {
	segments := strings.Split(text, openTool)
	if len(segments) < 2 {
		return nil
	}

	var calls []Call
	for _, seg := range segments[1:] {
		end := strings.Index(seg, closeTool)
		if end < 0 {
			continue
		}
		name := strings.TrimSpace(seg[:end])

		start := strings.Index(seg, openInput)
		if start < 0 || !strings.Contains(seg, closeInput) {
			continue
		}
		body := seg[start+len(openInput):]
		if stop := strings.Index(body, closeInput); stop >= 0 {
			body = body[:stop]
		}
		calls = append(calls, Call{
			Name:  name,
			Input: strings.TrimSpace(body),
		})
	}
	return calls
}
