package prompts

import "text/template"

const systemTemplate = `You are an expert capture-the-flag solver working one step at a time.
Your goal is to recover the challenge flag in picoCTF{...} format. Do not drift from the task.

## Working Rules
- Take exactly one concrete step per reply, then wait for its result.
- Prefer small, verifiable commands over long scripts.
- Never invent tool output. If a result is missing, ask for it.
- When you believe you have the flag, state it verbatim as picoCTF{...}.
{{- if .Tools }}

## Tools
{{ .Tools }}
{{- if .NativeTools }}
Call tools through the native tool-calling interface.
{{- else }}
Call a tool by writing:
<tool>TOOL_NAME</tool>
<input>TOOL_INPUT</input>
{{- end }}
{{- end }}`

const taskTreeTemplate = `## Task Tracking
Report progress on every reply using one line per task:
→ Task: N. <short description> - <pending|in-progress|completed|failed>
Keep task numbers stable across replies and update the status when it changes.
Alternatively report a batch through the task_manager tool:
<tool>task_manager</tool>
<input>{"updates":[{"task_id":"1","description":"...","status":"in-progress"}]}</input>`

const initialTemplate = `# Challenge: {{ .Title }}
{{- if .Category }}
Category: {{ .Category }}
{{- end }}
{{- if .Description }}

{{ .Description }}
{{- end }}
{{- if .Files }}

Files:
{{- range $i, $f := .Files }}
[File {{ inc $i }}]: {{ $f }}
{{- end }}
{{- end }}

{{ .TaskTree }}

Start by outlining your plan as tasks, then take the first step.`

const continueTemplate = `Continue solving "{{ .Title }}"{{ if .Category }} ({{ .Category }}){{ end }}.

Task progress:
{{ .TaskSummary }}

{{ if .Results -}}
Latest execution results:
{{ range $i, $r := .Results }}Result {{ inc $i }}:
{{ $r }}
{{ end }}
{{- else -}}
No previous execution results. Let's start by reading and decoding the input.
{{- end }}
Take the next single step. Update task statuses as you go.`

const nextStepTemplate = `{{ .Results }}

What is the next step? Reply with one concrete action and update the task statuses.`

const humanFeedbackTemplate = `Human feedback (results of manually executed steps or instructions):
{{ .Feedback }}

Incorporate this feedback, update the task statuses and take the next step.`

const verificationTemplate = `Verify the final answer.
{{- if .Results }}

Evidence from the latest execution:
{{ range $i, $r := .Results }}Result {{ inc $i }}:
{{ $r }}
{{ end }}
{{- end }}
State the exact flag in picoCTF{...} format and explain briefly how it was obtained. If no flag has been recovered yet, say so.`

var funcs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var (
	systemPrompt        = template.Must(template.New("system").Parse(systemTemplate))
	taskTreePrompt      = template.Must(template.New("taskTree").Parse(taskTreeTemplate))
	initialPrompt       = template.Must(template.New("initial").Funcs(funcs).Parse(initialTemplate))
	continuePrompt      = template.Must(template.New("continue").Funcs(funcs).Parse(continueTemplate))
	nextStepPrompt      = template.Must(template.New("nextStep").Parse(nextStepTemplate))
	humanFeedbackPrompt = template.Must(template.New("humanFeedback").Parse(humanFeedbackTemplate))
	verificationPrompt  = template.Must(template.New("verification").Funcs(funcs).Parse(verificationTemplate))
)
