// Package compiler compiles CUE registry definitions into ir.RegistrySpec.
//
// A registry file declares the metadata schemas with their fields, the
// bitstream formats and the groups a store is seeded with:
//
//	schema: dc: {
//		namespace: "http://dublincore.org/documents/dcmi-terms/"
//		fields: ["title", "identifier.uri"]
//	}
//	format: "Adobe PDF": {
//		mimetype: "application/pdf"
//		extensions: ["pdf"]
//	}
//	group: ["Anonymous"]
//
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
package compiler

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/itemupdate/internal/ir"
)

//go:embed default_registry.cue
var defaultRegistry []byte

// DefaultRegistry compiles the built-in registry.
func DefaultRegistry() (*ir.RegistrySpec, error) {
	return CompileSource("default_registry.cue", defaultRegistry)
}

// LoadFile compiles the registry file at path.
func LoadFile(path string) (*ir.RegistrySpec, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return CompileSource(path, src)
}

// CompileSource compiles registry source text. filename is used in error
// positions.
func CompileSource(filename string, src []byte) (*ir.RegistrySpec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileRegistry(v)
}

// CompileRegistry parses a CUE value into a RegistrySpec. Every section is
// optional; entries keep their declaration order.
func CompileRegistry(v cue.Value) (*ir.RegistrySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.RegistrySpec{}
	var err error

	if spec.Schemas, err = parseSchemas(v.LookupPath(cue.ParsePath("schema"))); err != nil {
		return nil, err
	}
	if spec.Formats, err = parseFormats(v.LookupPath(cue.ParsePath("format"))); err != nil {
		return nil, err
	}
	if spec.Groups, err = parseStrings(v.LookupPath(cue.ParsePath("group"))); err != nil {
		return nil, err
	}

	return spec, nil
}

func parseSchemas(v cue.Value) ([]ir.SchemaSpec, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var schemas []ir.SchemaSpec
	for iter.Next() {
		prefix := iter.Label()
		sv := iter.Value()

		schema := ir.SchemaSpec{Prefix: prefix}

		nsVal := sv.LookupPath(cue.ParsePath("namespace"))
		if !nsVal.Exists() {
			return nil, &CompileError{
				Field:   "schema." + prefix + ".namespace",
				Message: "namespace is required",
				Pos:     sv.Pos(),
			}
		}
		if schema.Namespace, err = nsVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		names, err := parseStrings(sv.LookupPath(cue.ParsePath("fields")))
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			field, err := ir.ParseFieldName(prefix+"."+name, false)
			if err != nil {
				return nil, &CompileError{
					Field:   "schema." + prefix + ".fields",
					Message: err.Error(),
					Pos:     sv.Pos(),
				}
			}
			schema.Fields = append(schema.Fields, field)
		}

		schemas = append(schemas, schema)
	}
	return schemas, nil
}

func parseFormats(v cue.Value) ([]ir.FormatSpec, error) {
	if !v.Exists() {
		return nil, nil
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var formats []ir.FormatSpec
	for iter.Next() {
		fv := iter.Value()
		format := ir.FormatSpec{ShortDescription: iter.Label()}

		mtVal := fv.LookupPath(cue.ParsePath("mimetype"))
		if !mtVal.Exists() {
			return nil, &CompileError{
				Field:   "format." + iter.Label() + ".mimetype",
				Message: "mimetype is required",
				Pos:     fv.Pos(),
			}
		}
		if format.MIMEType, err = mtVal.String(); err != nil {
			return nil, formatCUEError(err)
		}

		if format.Extensions, err = parseStrings(fv.LookupPath(cue.ParsePath("extensions"))); err != nil {
			return nil, err
		}

		formats = append(formats, format)
	}
	return formats, nil
}

// parseStrings reads an optional list of strings.
func parseStrings(v cue.Value) ([]string, error) {
	if !v.Exists() {
		return nil, nil
	}

	list, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []string
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}
