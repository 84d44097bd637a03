package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/gocondense/internal/assets/schemas"
)

// SchemaID identifies the embedded workflow manifest schema.
const SchemaID = "gocondense/v1.0.0/workflow-manifest"

var (
	ErrSchemaNotFound   = errors.New("manifest schema not found")
	ErrValidationFailed = errors.New("manifest validation failed")
)

// compiled holds the embedded schema, compiled on first use.
var compiled = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.WorkflowManifestSchema) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSchemaNotFound, SchemaID)
	}
	v, err := schema.NewValidator(schemasassets.WorkflowManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", SchemaID, err)
	}
	return v, nil
})

// ValidationError is one schema violation. Path is a JSON pointer such as
// "/job_sets/0/jobs/1/name"; it is empty for document-level problems.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors lists every violation found in one manifest. It matches
// ErrValidationFailed with errors.Is.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ErrValidationFailed.Error()
	case 1:
		return e[0].Error()
	}
	lines := make([]string, 0, len(e)+1)
	lines = append(lines, fmt.Sprintf("%s with %d errors:", ErrValidationFailed, len(e)))
	for _, v := range e {
		lines = append(lines, "  - "+v.Error())
	}
	return strings.Join(lines, "\n")
}

func (e ValidationErrors) Unwrap() error { return ErrValidationFailed }

// Validate re-checks an already decoded manifest, for callers that build a
// Manifest in code rather than loading one.
func Validate(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return ValidateRaw(data)
}

// ValidateRaw checks a JSON document against the embedded schema. Warnings
// are ignored; any error-level diagnostic yields ValidationErrors.
func ValidateRaw(jsonData []byte) error {
	v, err := compiled()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("validate against %s: %w", SchemaID, err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
