package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaViolation matches every *SchemaViolation.
var ErrSchemaViolation = errors.New("schema violation")

// SchemaViolation lists the failures of one payload by JSON pointer, with the leading slash
// dropped and "" for the document root.
type SchemaViolation struct {
	Schema string
	Fields map[string][]string
}

func (v *SchemaViolation) Error() string {
	paths := make([]string, 0, len(v.Fields))
	for p := range v.Fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	parts := make([]string, 0, len(paths))
	for _, p := range paths {
		label := p
		if label == "" {
			label = "(root)"
		}
		parts = append(parts, label+": "+strings.Join(v.Fields[p], ", "))
	}
	return fmt.Sprintf("%s: %s", v.Schema, strings.Join(parts, "; "))
}

func (v *SchemaViolation) Is(target error) bool { return target == ErrSchemaViolation }

// SchemaValidator checks JSONB payloads against the JSON Schemas embedded with the migrations.
type SchemaValidator struct {
	source   fs.FS
	compiled sync.Map // name -> *jsonschema.Schema
}

func NewSchemaValidator(source fs.FS) *SchemaValidator {
	if source == nil {
		panic("schema source is required")
	}
	return &SchemaValidator{source: source}
}

// Validate returns a *SchemaViolation when payload does not match the named schema. Any other
// error means the schema itself could not be loaded.
func (v *SchemaValidator) Validate(_ context.Context, name string, payload []byte) error {
	schema, err := v.schema(name)
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return &SchemaViolation{Schema: name, Fields: map[string][]string{"": {"not valid JSON"}}}
	}

	err = schema.Validate(document)
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		fields := map[string][]string{}
		collectLeaves(verr, fields)
		return &SchemaViolation{Schema: name, Fields: fields}
	}
	return err
}

func (v *SchemaValidator) schema(name string) (*jsonschema.Schema, error) {
	if cached, ok := v.compiled.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	raw, err := fs.ReadFile(v.source, name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	url := "mem:///" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("load schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	actual, _ := v.compiled.LoadOrStore(name, schema)
	return actual.(*jsonschema.Schema), nil
}

func collectLeaves(verr *jsonschema.ValidationError, into map[string][]string) {
	if len(verr.Causes) == 0 {
		path := strings.TrimPrefix(verr.InstanceLocation, "/")
		into[path] = append(into[path], verr.Message)
		return
	}
	for _, cause := range verr.Causes {
		collectLeaves(cause, into)
	}
}
