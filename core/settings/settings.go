// Package settings holds the operator-supplied configuration the
// conversation core reads once at conversation start: the persona
// instruction, an optional knowledge excerpt, and the optional credential
// used for webhook actions.
package settings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jinzhu/copier"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const DefaultSystemInstruction = "You are Maya, a friendly and helpful AI assistant."

// knowledgeDelimiter separates the persona instruction from the knowledge
// excerpt in the combined instruction text.
const knowledgeDelimiter = "--- \n Use the following knowledge base to answer questions: \n\n<knowledge>\n%s\n</knowledge>"

type Settings struct {
	// SystemInstruction defines the model's persona and purpose.
	SystemInstruction string `mapstructure:"system_instruction"`
	// KnowledgeBase is free-form context the model should answer from.
	KnowledgeBase string `mapstructure:"knowledge_base"`
	// WebhookToken is an optional bearer credential attached to webhook
	// action calls.
	WebhookToken string `mapstructure:"webhook_token"`
}

// Load reads settings from an optional config file and MAYA_-prefixed
// environment variables. A missing config file is not an error; missing
// values fall back to defaults.
func Load(path string) (Settings, error) {
	v := viper.New()
	v.SetDefault("system_instruction", DefaultSystemInstruction)
	v.SetDefault("knowledge_base", "")
	v.SetDefault("webhook_token", "")

	v.SetEnvPrefix("MAYA")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("maya")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.config/maya")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" {
			return Settings{}, fmt.Errorf("failed to read settings file: %w", err)
		}
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	return settings, nil
}

// ApplyOverrides merges a free-form key/value map into the settings. Keys
// match field names case-insensitively, ignoring underscores and dashes.
func (s *Settings) ApplyOverrides(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "mapstructure",
		Result:           s,
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return err
	}
	return decoder.Decode(values)
}

// Clone returns an independent copy, used as the editable draft while the
// settings panel is open.
func (s Settings) Clone() Settings {
	var clone Settings
	_ = copier.Copy(&clone, &s)
	return clone
}

// ComposeInstruction builds the combined instruction text sent at session
// setup: the persona instruction, then the knowledge excerpt behind a fixed
// delimiter block. Empty sections are omitted.
func (s Settings) ComposeInstruction() string {
	sections := []string{}
	if instruction := strings.TrimSpace(s.SystemInstruction); instruction != "" {
		sections = append(sections, instruction)
	}
	if knowledge := strings.TrimSpace(s.KnowledgeBase); knowledge != "" {
		sections = append(sections, fmt.Sprintf(knowledgeDelimiter, knowledge))
	}
	return strings.Join(sections, "\n\n")
}

func normalizeKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", "")
	value = strings.ReplaceAll(value, "-", "")
	return value
}
