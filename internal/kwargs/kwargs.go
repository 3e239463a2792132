// Package kwargs decodes loosely typed option bags into typed configuration structs.
package kwargs

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/kailas-cloud/queryforge/internal/domain"
)

// Decode copies in into the struct pointed to by out, matching `mapstructure` tags.
// Unknown keys are rejected so typos surface at construction time.
// Scalars are weakly typed ("0.9" decodes into a float64).
func Decode(in map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(in); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConfiguration, err)
	}
	return nil
}

// Merge returns a new map holding base overlaid with override. Neither input is modified.
func Merge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Without returns a copy of in with the given keys removed.
func Without(in map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}
