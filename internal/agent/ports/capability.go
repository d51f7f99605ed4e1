package ports

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Capability is a named operation with a text-in, text-out contract.
type Capability interface {
	// Execute runs the capability. Failures are reported in the Result,
	// never through the error return.
	Execute(ctx context.Context, call Call) (*Result, error)

	// Definition describes the capability to callers
	Definition() Definition

	// Metadata returns capability metadata
	Metadata() Metadata
}

// Registry manages available capabilities
type Registry interface {
	Register(capability Capability) error
	Get(name string) (Capability, error)
	List() []Definition
	Unregister(name string) error
}

// Call is a request to execute a capability.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     string         `json:"input,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Text returns the free-form input of the call. Input wins over the "text"
// and "input" arguments.
func (c Call) Text() string {
	if strings.TrimSpace(c.Input) != "" {
		return c.Input
	}
	for _, key := range []string{"text", "input"} {
		if value, ok := c.Arguments[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// Result is the execution result
type Result struct {
	CallID   string         `json:"call_id"`
	Content  string         `json:"content"`
	Error    error          `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON encodes Error as its message.
func (r Result) MarshalJSON() ([]byte, error) {
	type alias struct {
		CallID   string         `json:"call_id"`
		Content  string         `json:"content"`
		Error    any            `json:"error,omitempty"`
		Metadata map[string]any `json:"metadata,omitempty"`
	}

	out := alias{
		CallID:   r.CallID,
		Content:  r.Content,
		Metadata: r.Metadata,
	}
	if r.Error != nil {
		out.Error = r.Error.Error()
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts both string and object error representations.
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias struct {
		CallID   string          `json:"call_id"`
		Content  string          `json:"content"`
		Error    json.RawMessage `json:"error"`
		Metadata map[string]any  `json:"metadata,omitempty"`
	}

	var aux alias
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.CallID = aux.CallID
	r.Content = aux.Content
	r.Metadata = aux.Metadata
	r.Error = nil

	raw := strings.TrimSpace(string(aux.Error))
	if raw == "" || raw == "null" {
		return nil
	}

	var errStr string
	if err := json.Unmarshal(aux.Error, &errStr); err == nil {
		if errStr != "" {
			r.Error = errors.New(errStr)
		}
		return nil
	}

	var errObj map[string]any
	if err := json.Unmarshal(aux.Error, &errObj); err == nil {
		for _, key := range []string{"message", "error"} {
			if msg, ok := errObj[key].(string); ok && msg != "" {
				r.Error = errors.New(msg)
				return nil
			}
		}
	}

	r.Error = errors.New(raw)
	return nil
}

// Definition describes a capability
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Usage       string          `json:"usage,omitempty"`
	Parameters  ParameterSchema `json:"parameters"`
}

// Metadata contains capability information
type Metadata struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Category  string   `json:"category"`
	Tags      []string `json:"tags"`
	Dangerous bool     `json:"dangerous"`
}

// ParameterSchema defines parameters (JSON Schema format)
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}
