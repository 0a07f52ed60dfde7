package tools

import "time"

// BuiltinOptions configures DefaultRegistry.
type BuiltinOptions struct {
	EnableCommand bool
	Shell         string
	WorkingDir    string
	Timeout       time.Duration
}

// DefaultRegistry registers the built-in tools. The command tool is only
// added when enabled.
func DefaultRegistry(opts BuiltinOptions) *Registry {
	r := NewRegistry(NewTaskManagerTool(), NewFlagValidatorTool())
	if opts.EnableCommand {
		r.Register(NewCommandTool(CommandToolConfig{
			Shell:      opts.Shell,
			WorkingDir: opts.WorkingDir,
			Timeout:    opts.Timeout,
		}))
	}
	return r
}
