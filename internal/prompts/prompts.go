// Package prompts renders the text sent to the model at each stage of a
// session.
package prompts

import (
	"bytes"
	"strings"
	"text/template"
)

// FirstStep is the next-step text used before anything has happened.
const FirstStep = "Let's start solving this challenge. What's the first step?"

// DetermineNext is the next-step text used when the last round ran no tools.
const DetermineNext = "Please determine the next step based on your last analysis."

// SystemData parameterizes the system prompt.
type SystemData struct {
	Tools       string
	NativeTools bool
}

// Challenge describes what is being solved.
type Challenge struct {
	Title       string
	Category    string
	Description string
	Files       []string
}

// ContinueData parameterizes the continue prompt.
type ContinueData struct {
	Title       string
	Category    string
	TaskSummary string
	Results     []string
}

func render(t *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		// templates are static and their data types fixed
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}

// System renders the system prompt.
func System(data SystemData) string {
	return render(systemPrompt, data)
}

// TaskTreeInstructions describes the task directive notation.
func TaskTreeInstructions() string {
	return render(taskTreePrompt, nil)
}

// Initial renders the first prompt of a session.
func Initial(c Challenge) string {
	title := c.Title
	if strings.TrimSpace(title) == "" {
		title = "Unknown Challenge"
	}
	return render(initialPrompt, struct {
		Challenge
		Title    string
		TaskTree string
	}{c, title, TaskTreeInstructions()})
}

// Continue renders the continue prompt with numbered results.
func Continue(data ContinueData) string {
	if data.Title == "" {
		data.Title = "Unknown Challenge"
	}
	return render(continuePrompt, data)
}

// NextStep renders the next-step prompt. Results are joined by newlines;
// none at all means the session is just starting.
func NextStep(results []string) string {
	text := FirstStep
	if len(results) > 0 {
		text = strings.Join(results, "\n")
	}
	return render(nextStepPrompt, struct{ Results string }{text})
}

// HumanFeedback wraps manually supplied results or instructions.
func HumanFeedback(feedback string) string {
	return render(humanFeedbackPrompt, struct{ Feedback string }{strings.TrimSpace(feedback)})
}

// Verification asks the model to state and justify the final flag.
func Verification(results []string) string {
	return render(verificationPrompt, struct{ Results []string }{results})
}
