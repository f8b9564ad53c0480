package ailink

// taskBreakdownSchemaName is the structured output format name.
const taskBreakdownSchemaName = "task_breakdown"

// taskBreakdownSchema is the strict JSON schema for {goal, tasks:[{order, task}]}.
func taskBreakdownSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goal": map[string]any{"type": "string"},
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"order": map[string]any{"type": "integer"},
						"task":  map[string]any{"type": "string"},
					},
					"required":             []string{"order", "task"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []string{"goal", "tasks"},
		"additionalProperties": false,
	}
}
