package cli

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// render prints v to stdout in the selected output format
func (c *CLI) render(v any) error {
	switch c.output {
	case OutputYAML:
		enc := yaml.NewEncoder(c.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	default:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		_, err = fmt.Fprintln(c.out, string(b))
		return err
	}
}
