package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// DefaultSettingsFile is looked up next to the build descriptor.
const DefaultSettingsFile = "markovbuild.yaml"

// Settings is the on-disk defaults file. Command-line flags override it.
type Settings struct {
	// Properties are invoker properties, overridden by -D on the command line.
	Properties map[string]string `yaml:"properties" json:"properties,omitempty" jsonschema:"description=Invoker properties available for forwarding to launched JVMs"`
	LogLevel   string            `yaml:"log_level" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	LogFormat  string            `yaml:"log_format" json:"log_format,omitempty" validate:"omitempty,oneof=text json" jsonschema:"enum=text,enum=json"`
	Workers    int               `yaml:"workers" json:"workers,omitempty" validate:"gte=0" jsonschema:"minimum=0,description=Number of tasks run in parallel"`
	StatusPort int               `yaml:"status_port" json:"status_port,omitempty" validate:"gte=0,lte=65535" jsonschema:"minimum=0,maximum=65535"`
}

// LoadSettings reads a settings file. A missing file yields empty settings
// unless required is set.
func LoadSettings(path string, required bool) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return &Settings{}, nil
		}
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return ParseSettings(data, path)
}

// ParseSettings decodes and validates settings YAML. Unknown keys are errors.
func ParseSettings(data []byte, filename string) (*Settings, error) {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse settings %s: %w", filename, err)
	}
	if err := validator.New().Struct(s); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", filename, err)
	}
	return &s, nil
}

// SettingsSchema returns the JSON schema of the settings file.
func SettingsSchema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	schema := reflector.Reflect(&Settings{})
	schema.Title = "markovbuild settings"

	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}
