package metrics

import (
	"fmt"

	"github.com/kilianp07/eta/core/factory"
)

// Config lists the sinks that receive prediction and training events. An
// empty list records nothing.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks"`
}

// Validate rejects sinks without a type and a type configured twice.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Sinks))
	for i, s := range c.Sinks {
		if s.Type == "" {
			return fmt.Errorf("sink %d: missing type", i)
		}
		if seen[s.Type] {
			return fmt.Errorf("sink %d: %s configured twice", i, s.Type)
		}
		seen[s.Type] = true
	}
	return nil
}
