package ailink

import "time"

// Defaults for the task planner.
const (
	DefaultModel           = "gpt-4o-mini"
	DefaultModerationModel = "omni-moderation-latest"
	DefaultTimeout         = 60 * time.Second
	DefaultMaxTasks        = 5
)

// Config configures the language model provider used for moderation and
// task generation.
type Config struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model" validate:"required"`
	ModerationModel string        `mapstructure:"moderation_model"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gte=0"`
	MaxTasks        int           `mapstructure:"max_tasks" validate:"gte=1,lte=20"`

	// TraceFile, when set, appends NDJSON traces of provider calls.
	TraceFile string `mapstructure:"trace_file"`
}

// DefaultConfig returns the planner defaults. The API key is left empty.
func DefaultConfig() Config {
	return Config{
		Model:           DefaultModel,
		ModerationModel: DefaultModerationModel,
		Timeout:         DefaultTimeout,
		MaxTasks:        DefaultMaxTasks,
	}
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.ModerationModel == "" {
		c.ModerationModel = DefaultModerationModel
	}
	if c.MaxTasks <= 0 {
		c.MaxTasks = DefaultMaxTasks
	}
	return c
}
