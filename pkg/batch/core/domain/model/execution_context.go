package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// ExecutionContext is the key-value state persisted with a job or step execution.
// It is not safe for concurrent mutation; each context belongs to a single execution.
type ExecutionContext map[string]interface{}

// NewExecutionContext returns an empty context.
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put stores value under key.
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get returns the value under key.
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// ContainsKey reports whether key is present.
func (ec ExecutionContext) ContainsKey(key string) bool {
	_, ok := ec[key]
	return ok
}

// Remove deletes key.
func (ec ExecutionContext) Remove(key string) {
	delete(ec, key)
}

// GetString returns key as a string.
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt returns key as an int. JSON round trips turn integers into float64, which is
// accepted here.
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case int32:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

// GetBool returns key as a bool.
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	b, ok := ec[key].(bool)
	return b, ok
}

// GetFloat64 returns key as a float64.
func (ec ExecutionContext) GetFloat64(key string) (float64, bool) {
	switch v := ec[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Keys returns the keys in sorted order.
func (ec ExecutionContext) Keys() []string {
	keys := make([]string, 0, len(ec))
	for k := range ec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a deep copy made through a JSON round trip, falling back to a shallow
// copy for values JSON cannot encode.
func (ec ExecutionContext) Copy() ExecutionContext {
	if ec == nil {
		return NewExecutionContext()
	}
	data, err := json.Marshal(ec)
	if err == nil {
		out := NewExecutionContext()
		if err := json.Unmarshal(data, &out); err == nil {
			return out
		}
	}
	out := make(ExecutionContext, len(ec))
	for k, v := range ec {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into ec, prefixing keys with prefix when non-empty.
func (ec ExecutionContext) Merge(prefix string, other ExecutionContext) {
	for k, v := range other {
		if prefix != "" {
			k = prefix + "." + k
		}
		ec[k] = v
	}
}

// Value implements driver.Valuer.
func (ec ExecutionContext) Value() (driver.Value, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution context: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (ec *ExecutionContext) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*ec = NewExecutionContext()
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for ExecutionContext: %T", value)
	}
	out := NewExecutionContext()
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("failed to decode execution context: %w", err)
		}
	}
	*ec = out
	return nil
}

// FailureList holds failure messages; it is stored as a JSON array.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(data) == 0 {
		*fl = FailureList{}
		return nil
	}
	return json.Unmarshal(data, fl)
}
