package searcher

import (
	"fmt"

	"github.com/kailas-cloud/queryforge/internal/kwargs"
)

// DecodeKwargs decodes the option bag of adapter name into out, rejecting unknown keys.
func DecodeKwargs(name string, in map[string]any, out any) error {
	if err := kwargs.Decode(in, out); err != nil {
		return fmt.Errorf("%s searcher options: %w", name, err)
	}
	return nil
}
