// Command generate-schema writes the JSON schema of the DittoHTTP
// configuration file, for editor completion and validation.
//
// Usage:
//
//	generate-schema [output]
//
// The output defaults to config.schema.json; "-" writes to stdout.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/marmos91/dittohttp/pkg/config"
)

func main() {
	// Config keys are the mapstructure names viper decodes, not Go field names.
	reflector := jsonschema.Reflector{
		FieldNameTag:              "mapstructure",
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.Title = "DittoHTTP Configuration"
	schema.Description = "Configuration schema for the DittoHTTP file server"
	schema.Version = "1.0.0"

	schemaJSON, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling schema: %v\n", err)
		os.Exit(1)
	}

	outputFile := "config.schema.json"
	if len(os.Args) > 1 {
		outputFile = os.Args[1]
	}

	if outputFile == "-" {
		_, _ = os.Stdout.Write(append(schemaJSON, '\n'))
		return
	}

	if err := os.WriteFile(outputFile, schemaJSON, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", outputFile)
}
