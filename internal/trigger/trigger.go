package trigger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind identifies the wake condition a trigger evaluates.
type Kind string

const (
	// KindDate fires once a fixed point in time has passed.
	KindDate Kind = "date"
	// KindEvent fires once a named domain event has been recorded
	// after the trigger was created.
	KindEvent Kind = "event"
)

// Owner kinds a trigger may be attached to.
const (
	OwnerTask     = "task"
	OwnerWorkflow = "workflow"
)

// ErrInvalidConfig is returned when a trigger's stored config does not
// satisfy its kind.
var ErrInvalidConfig = errors.New("invalid trigger config")

// Config is the parsed form of a trigger's config_json document.
type Config struct {
	FireAt   *time.Time `json:"fire_at,omitempty"`
	EventKey string     `json:"event_key,omitempty"`
}

// ParseConfig decodes and validates a trigger config for the kind. A
// date trigger requires fire_at; an event trigger requires event_key.
func ParseConfig(kind Kind, configJSON string) (Config, error) {
	var cfg Config
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch kind {
	case KindDate:
		if cfg.FireAt == nil {
			return Config{}, fmt.Errorf("%w: date trigger requires fire_at", ErrInvalidConfig)
		}
	case KindEvent:
		if cfg.EventKey == "" {
			return Config{}, fmt.Errorf("%w: event trigger requires event_key", ErrInvalidConfig)
		}
	default:
		return Config{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, string(kind))
	}
	return cfg, nil
}

// DateConfigJSON renders the config document for a date trigger.
func DateConfigJSON(fireAt time.Time) string {
	b, _ := json.Marshal(Config{FireAt: &fireAt})
	return string(b)
}

// EventConfigJSON renders the config document for an event trigger.
func EventConfigJSON(eventKey string) string {
	b, _ := json.Marshal(Config{EventKey: eventKey})
	return string(b)
}
