package model

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ParameterType is the declared type of a job parameter.
type ParameterType string

const (
	ParameterTypeString ParameterType = "STRING"
	ParameterTypeLong   ParameterType = "LONG"
	ParameterTypeDate   ParameterType = "DATE"
	ParameterTypeDouble ParameterType = "DOUBLE"
)

// DateLayout is the layout used for DATE parameters given as text.
const DateLayout = "2006-01-02"

// JobParameter is one typed parameter value.
type JobParameter struct {
	Type  ParameterType
	Value interface{}
}

// String renders the value canonically: dates as DateLayout (or RFC3339 when they carry a
// clock), doubles with the shortest exact form.
func (p JobParameter) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		if v.Equal(v.Truncate(24 * time.Hour)) {
			return v.UTC().Format(DateLayout)
		}
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// JobParameters is an immutable, insertion-ordered set of typed parameters.
// The zero value is an empty parameter set. Put* methods return modified copies.
type JobParameters struct {
	keys   []string
	params map[string]JobParameter
}

// NewJobParameters returns an empty parameter set.
func NewJobParameters() JobParameters {
	return JobParameters{params: map[string]JobParameter{}}
}

func (p JobParameters) with(key string, param JobParameter) JobParameters {
	out := JobParameters{
		keys:   make([]string, 0, len(p.keys)+1),
		params: make(map[string]JobParameter, len(p.params)+1),
	}
	out.keys = append(out.keys, p.keys...)
	for k, v := range p.params {
		out.params[k] = v
	}
	if _, exists := out.params[key]; !exists {
		out.keys = append(out.keys, key)
	}
	out.params[key] = param
	return out
}

// PutString returns a copy with key set to a STRING value.
func (p JobParameters) PutString(key, value string) JobParameters {
	return p.with(key, JobParameter{Type: ParameterTypeString, Value: value})
}

// PutLong returns a copy with key set to a LONG value.
func (p JobParameters) PutLong(key string, value int64) JobParameters {
	return p.with(key, JobParameter{Type: ParameterTypeLong, Value: value})
}

// PutDate returns a copy with key set to a DATE value.
func (p JobParameters) PutDate(key string, value time.Time) JobParameters {
	return p.with(key, JobParameter{Type: ParameterTypeDate, Value: value.UTC()})
}

// PutDouble returns a copy with key set to a DOUBLE value.
func (p JobParameters) PutDouble(key string, value float64) JobParameters {
	return p.with(key, JobParameter{Type: ParameterTypeDouble, Value: value})
}

// Put returns a copy with key set to param.
func (p JobParameters) Put(key string, param JobParameter) JobParameters {
	return p.with(key, param)
}

// Get returns the parameter stored under key.
func (p JobParameters) Get(key string) (JobParameter, bool) {
	v, ok := p.params[key]
	return v, ok
}

// Has reports whether key is present.
func (p JobParameters) Has(key string) bool {
	_, ok := p.params[key]
	return ok
}

// GetString returns the canonical text of key, or "" when absent.
func (p JobParameters) GetString(key string) string {
	v, ok := p.params[key]
	if !ok {
		return ""
	}
	return v.String()
}

// GetLong returns key as int64. STRING values are parsed.
func (p JobParameters) GetLong(key string) (int64, bool) {
	v, ok := p.params[key]
	if !ok {
		return 0, false
	}
	switch n := v.Value.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	}
	return 0, false
}

// GetDouble returns key as float64. STRING and LONG values are converted.
func (p JobParameters) GetDouble(key string) (float64, bool) {
	v, ok := p.params[key]
	if !ok {
		return 0, false
	}
	switch n := v.Value.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// GetDate returns key as a time. STRING values are parsed with DateLayout.
func (p JobParameters) GetDate(key string) (time.Time, bool) {
	v, ok := p.params[key]
	if !ok {
		return time.Time{}, false
	}
	switch d := v.Value.(type) {
	case time.Time:
		return d, true
	case string:
		t, err := time.Parse(DateLayout, strings.TrimSpace(d))
		return t, err == nil
	}
	return time.Time{}, false
}

// Keys returns parameter names in insertion order.
func (p JobParameters) Keys() []string {
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of parameters.
func (p JobParameters) Len() int { return len(p.keys) }

// IsEmpty reports whether there are no parameters.
func (p JobParameters) IsEmpty() bool { return len(p.keys) == 0 }

// ToMap returns the raw values keyed by name.
func (p JobParameters) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(p.params))
	for k, v := range p.params {
		out[k] = v.Value
	}
	return out
}

// Equal reports whether both sets hold the same typed values, ignoring order.
func (p JobParameters) Equal(other JobParameters) bool {
	if len(p.params) != len(other.params) {
		return false
	}
	return p.Contains(other)
}

// Contains reports whether every parameter in subset is present here with the same value.
func (p JobParameters) Contains(subset JobParameters) bool {
	for k, want := range subset.params {
		got, ok := p.params[k]
		if !ok || got.Type != want.Type || got.String() != want.String() {
			return false
		}
	}
	return true
}

type wireParameter struct {
	Name  string        `json:"name"`
	Type  ParameterType `json:"type"`
	Value string        `json:"value"`
}

func (p JobParameters) wire(sorted bool) []wireParameter {
	keys := p.Keys()
	if sorted {
		sort.Strings(keys)
	}
	out := make([]wireParameter, 0, len(keys))
	for _, k := range keys {
		v := p.params[k]
		out = append(out, wireParameter{Name: k, Type: v.Type, Value: v.String()})
	}
	return out
}

// Hash returns the hex sha256 of the key-sorted canonical JSON encoding. Together with the
// job name it identifies a JobInstance.
func (p JobParameters) Hash() (string, error) {
	data, err := json.Marshal(p.wire(true))
	if err != nil {
		return "", fmt.Errorf("failed to encode job parameters for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON encodes the parameters as an ordered list of typed entries.
func (p JobParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.wire(false))
}

// UnmarshalJSON restores parameters written by MarshalJSON.
func (p *JobParameters) UnmarshalJSON(data []byte) error {
	var entries []wireParameter
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	out := NewJobParameters()
	for _, e := range entries {
		param, err := parseTyped(e.Type, e.Value)
		if err != nil {
			return fmt.Errorf("job parameter '%s': %w", e.Name, err)
		}
		out = out.with(e.Name, param)
	}
	*p = out
	return nil
}

// Value implements driver.Valuer.
func (p JobParameters) Value() (driver.Value, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (p *JobParameters) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = NewJobParameters()
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for JobParameters: %T", value)
	}
	if len(data) == 0 {
		*p = NewJobParameters()
		return nil
	}
	return p.UnmarshalJSON(data)
}

func parseTyped(t ParameterType, raw string) (JobParameter, error) {
	switch t {
	case ParameterTypeString, "":
		return JobParameter{Type: ParameterTypeString, Value: raw}, nil
	case ParameterTypeLong:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("invalid long value %q: %w", raw, err)
		}
		return JobParameter{Type: t, Value: n}, nil
	case ParameterTypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return JobParameter{}, fmt.Errorf("invalid double value %q: %w", raw, err)
		}
		return JobParameter{Type: t, Value: f}, nil
	case ParameterTypeDate:
		raw = strings.TrimSpace(raw)
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			d, err = time.Parse(time.RFC3339Nano, raw)
		}
		if err != nil {
			return JobParameter{}, fmt.Errorf("invalid date value %q: %w", raw, err)
		}
		return JobParameter{Type: t, Value: d.UTC()}, nil
	default:
		return JobParameter{}, fmt.Errorf("unknown parameter type %q", t)
	}
}

var paramArg = regexp.MustCompile(`^([^=()]+)(?:\((string|long|date|double)\))?=(.*)$`)

// ParseJobParameters parses command-line style arguments of the form "name=value" or
// "name(type)=value" where type is one of string, long, date or double.
func ParseJobParameters(args []string) (JobParameters, error) {
	out := NewJobParameters()
	for _, arg := range args {
		m := paramArg.FindStringSubmatch(arg)
		if m == nil {
			return JobParameters{}, fmt.Errorf("malformed job parameter %q, expected name[(type)]=value", arg)
		}
		t := ParameterTypeString
		if m[2] != "" {
			t = ParameterType(strings.ToUpper(m[2]))
		}
		param, err := parseTyped(t, m[3])
		if err != nil {
			return JobParameters{}, fmt.Errorf("job parameter '%s': %w", m[1], err)
		}
		out = out.with(strings.TrimSpace(m[1]), param)
	}
	return out, nil
}

var (
	maskMu     sync.RWMutex
	maskedKeys = map[string]struct{}{}
)

// SetMaskedParameterKeys configures parameter names whose values String() hides.
func SetMaskedParameterKeys(keys []string) {
	maskMu.Lock()
	defer maskMu.Unlock()
	maskedKeys = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		maskedKeys[k] = struct{}{}
	}
}

// String renders the parameters for logs, masking configured keys.
func (p JobParameters) String() string {
	maskMu.RLock()
	defer maskMu.RUnlock()
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		v := p.params[k].String()
		if _, masked := maskedKeys[k]; masked {
			v = "********"
		}
		parts = append(parts, k+"="+v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
