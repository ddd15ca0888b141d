// Package configbinder binds loosely typed property maps (from job definitions or
// environment-style config) onto typed component configuration structs.
package configbinder

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// BindProperties decodes props into target, which must be a pointer to a struct.
// Fields are matched on their `yaml` tags and strings are converted to numbers, bools
// and durations as needed. An empty map leaves target untouched.
func BindProperties(props map[string]string, target interface{}) error {
	if len(props) == 0 {
		return nil
	}
	in := make(map[string]interface{}, len(props))
	for k, v := range props {
		in[k] = v
	}
	return Bind(in, target)
}

// Bind decodes an arbitrary property map into target.
func Bind(props map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create property decoder: %w", err)
	}
	if err := decoder.Decode(props); err != nil {
		return fmt.Errorf("failed to bind properties to %s: %w", targetName(target), err)
	}
	return nil
}

func targetName(target interface{}) string {
	t := reflect.TypeOf(target)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return "<nil>"
	}
	return t.Name()
}

// Duration is a convenience for components that accept a duration property with a
// fallback.
func Duration(props map[string]string, key string, fallback time.Duration) time.Duration {
	v, ok := props[key]
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
