// Package serialization renders job data for logs and notifications.
package serialization

import (
	"sort"
	"strings"

	model "github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
)

// Mask replaces the value of a masked parameter.
const Mask = "********"

// MaskedParameters returns the string form of every parameter, with the values of
// maskedKeys replaced by Mask. Keys match case-insensitively.
func MaskedParameters(params model.JobParameters, maskedKeys []string) map[string]string {
	masked := make(map[string]struct{}, len(maskedKeys))
	for _, k := range maskedKeys {
		masked[strings.ToLower(k)] = struct{}{}
	}
	out := make(map[string]string, params.Len())
	for _, k := range params.Keys() {
		if _, ok := masked[strings.ToLower(k)]; ok {
			out[k] = Mask
			continue
		}
		p, _ := params.Get(k)
		out[k] = p.String()
	}
	return out
}

// FormatParameters renders params as "{a=1, b=x}" in key order, masking maskedKeys.
func FormatParameters(params model.JobParameters, maskedKeys []string) string {
	m := MaskedParameters(params, maskedKeys)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	b.WriteByte('}')
	return b.String()
}
