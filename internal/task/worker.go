package task

import (
	"context"
	"slices"
)

// ConfigurationType is the declared type of a configuration key.
type ConfigurationType string

// Supported configuration types
const (
	ConfigString     ConfigurationType = "STRING"
	ConfigBoolean    ConfigurationType = "BOOLEAN"
	ConfigNumeric    ConfigurationType = "NUMERIC"
	ConfigFileUpload ConfigurationType = "FILE_UPLOAD"
	ConfigBasePath   ConfigurationType = "BASE_PATH"
	ConfigEnum       ConfigurationType = "ENUM"
)

// CompletionFunc is handed to a Worker so it can signal that downstream
// asynchronous work it triggered has finished. It may be called during
// ProcessTask or any time afterwards.
type CompletionFunc func(ctx context.Context, t *Task)

// Worker is a named, pluggable strategy that executes one kind of task.
// Workers are stateless and registered once at process start.
type Worker interface {
	// Name is unique within the registry of a task kind.
	Name() string

	// SupportedConfigurationKeys lists every key the worker accepts.
	SupportedConfigurationKeys() []string

	// RequiredConfigurationKeys is the subset that must be present and non-empty.
	RequiredConfigurationKeys() []string

	// ConfigurationType returns the declared type of key.
	ConfigurationType(key string) ConfigurationType

	// DefaultConfigurationValue returns the value used when key is not supplied.
	DefaultConfigurationValue(key string) string

	// ProcessTask executes the task. A non-nil error is treated like a false
	// result and recorded in the task feedback.
	ProcessTask(ctx context.Context, t *Task, done CompletionFunc) (bool, error)
}

// ConfigurationKey declares one parameter of a worker.
type ConfigurationKey struct {
	Key      string
	Type     ConfigurationType
	Required bool
	Default  string
	// Options lists the allowed values of an ENUM key.
	Options []string
}

// ConfigurationSchema implements the schema half of Worker from a declarative
// key list. Concrete workers embed it.
type ConfigurationSchema []ConfigurationKey

// SupportedConfigurationKeys lists every declared key in declaration order.
func (s ConfigurationSchema) SupportedConfigurationKeys() []string {
	keys := make([]string, 0, len(s))
	for _, k := range s {
		keys = append(keys, k.Key)
	}
	return keys
}

// RequiredConfigurationKeys lists the declared keys marked required.
func (s ConfigurationSchema) RequiredConfigurationKeys() []string {
	var keys []string
	for _, k := range s {
		if k.Required {
			keys = append(keys, k.Key)
		}
	}
	return keys
}

// ConfigurationType returns the declared type of key, or STRING for unknown keys.
func (s ConfigurationSchema) ConfigurationType(key string) ConfigurationType {
	if k, ok := s.lookup(key); ok {
		return k.Type
	}
	return ConfigString
}

// DefaultConfigurationValue returns the declared default of key.
func (s ConfigurationSchema) DefaultConfigurationValue(key string) string {
	if k, ok := s.lookup(key); ok {
		return k.Default
	}
	return ""
}

// EnumOptions returns the allowed values of an ENUM key.
func (s ConfigurationSchema) EnumOptions(key string) []string {
	if k, ok := s.lookup(key); ok {
		return slices.Clone(k.Options)
	}
	return nil
}

func (s ConfigurationSchema) lookup(key string) (ConfigurationKey, bool) {
	for _, k := range s {
		if k.Key == key {
			return k, true
		}
	}
	return ConfigurationKey{}, false
}

// enumOptioner is implemented by workers that expose ENUM options,
// typically through an embedded ConfigurationSchema.
type enumOptioner interface {
	EnumOptions(key string) []string
}

// WorkerSchema is a serialisable description of a worker's configuration.
type WorkerSchema struct {
	Name string            `json:"name"`
	Keys []WorkerSchemaKey `json:"keys"`
}

// WorkerSchemaKey describes one configuration key in a WorkerSchema.
type WorkerSchemaKey struct {
	Key      string            `json:"key"`
	Type     ConfigurationType `json:"type"`
	Required bool              `json:"required"`
	Default  string            `json:"default,omitempty"`
	Options  []string          `json:"options,omitempty"`
}

// DescribeWorker builds the WorkerSchema of w from its Worker methods.
func DescribeWorker(w Worker) WorkerSchema {
	required := w.RequiredConfigurationKeys()
	schema := WorkerSchema{Name: w.Name()}
	for _, key := range w.SupportedConfigurationKeys() {
		k := WorkerSchemaKey{
			Key:      key,
			Type:     w.ConfigurationType(key),
			Required: slices.Contains(required, key),
			Default:  w.DefaultConfigurationValue(key),
		}
		if eo, ok := w.(enumOptioner); ok && k.Type == ConfigEnum {
			k.Options = eo.EnumOptions(key)
		}
		schema.Keys = append(schema.Keys, k)
	}
	return schema
}
