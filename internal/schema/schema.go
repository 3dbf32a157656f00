// Package schema validates persisted documents against embedded JSON Schemas.
package schema

import (
	"bytes"
	_ "embed"
	"sync"

	"github.com/juju/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

const progressURL = "schema://progress.json"

//go:embed progress.schema.json
var progressSchema []byte

var compileProgress = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(progressSchema))
	if err != nil {
		return nil, errors.Annotate(err, "parse progress schema")
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(progressURL, doc); err != nil {
		return nil, errors.Annotate(err, "add progress schema")
	}
	compiled, err := c.Compile(progressURL)
	if err != nil {
		return nil, errors.Annotate(err, "compile progress schema")
	}
	return compiled, nil
})

// ValidateProgress checks an encoded progress document. Violations are
// reported as NotValid errors.
func ValidateProgress(raw []byte) error {
	compiled, err := compileProgress()
	if err != nil {
		return errors.Trace(err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return errors.NewNotValid(err, "progress document is not JSON")
	}
	if err := compiled.Validate(doc); err != nil {
		return errors.NewNotValid(err, "progress document")
	}
	return nil
}
