package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/invopop/jsonschema"
)

// SchemaCmd prints the config file JSON schema
type SchemaCmd struct{}

// Run executes the schema command
func (c *SchemaCmd) Run(ctx *kong.Context, cli *CLI) error {
	return writeConfigSchema(os.Stdout)
}

func writeConfigSchema(w io.Writer) error {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&fileConfig{})
	schema.Title = "ema-tutor config"

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
