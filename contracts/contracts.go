// Package contracts embeds the OpenAPI document served and enforced by the API.
package contracts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed rentflow.yaml
var rentflowYAML []byte

// Raw returns the embedded document as written.
func Raw() []byte {
	return rentflowYAML
}

// Load parses and validates the embedded document. Servers are cleared so request routing
// matches on the absolute /api/v1 paths regardless of the host serving them.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	spec, err := loader.LoadFromData(rentflowYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := spec.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	spec.Servers = nil
	return spec, nil
}
