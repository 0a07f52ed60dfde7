package tools

const (
	ToolNameTaskManager   = "task_manager"
	ToolNameFlagValidator = "flag_validator"
	ToolNameSystemCommand = "system_command"
)
