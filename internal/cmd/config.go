package cmd

import (
	"fmt"
	"io"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/goalsmith/goalsmith/internal/config"
)

const redacted = "********"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print the merged configuration (defaults, config file, GOALSMITH_* environment) as YAML. Secrets are redacted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# config file: %s\n", used)
		}
		return writeConfigYAML(cmd.OutOrStdout(), cfg)
	},
}

// writeConfigYAML writes cfg using its config-file key names.
func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	redactedCfg := *cfg
	if redactedCfg.AILink.APIKey != "" {
		redactedCfg.AILink.APIKey = redacted
	}
	if redactedCfg.Store.AuthToken != "" {
		redactedCfg.Store.AuthToken = redacted
	}
	if redactedCfg.Server.AdminToken != "" {
		redactedCfg.Server.AdminToken = redacted
	}

	settings := map[string]any{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "mapstructure",
		Result:  &settings,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(redactedCfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(stringifyDurations(settings)); err != nil {
		return err
	}
	return enc.Close()
}

// stringifyDurations renders time.Duration values as "1h0m0s" rather than
// nanosecond integers.
func stringifyDurations(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, value := range typed {
			out[key] = stringifyDurations(value)
		}
		return out
	case fmt.Stringer:
		return typed.String()
	default:
		return v
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
