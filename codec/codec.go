// Package codec provides the pluggable encode/decode layer used by the
// worker runtime to turn raw task payload bytes into typed Go values and
// back. Since Go has no runtime type-hint inspection, codec selection is
// explicit: a handler registration supplies the codec pair for its input
// and output types (see package handler) instead of having the registry
// infer them from a signature at runtime.
package codec

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
	schemaValidator "github.com/santhosh-tekuri/jsonschema/v6"
	"go.bryk.io/tacoq/errors"
)

// ErrCodec is returned whenever an encode or decode operation fails. It
// is also returned, at registration time, by Record when a type cannot be
// reflected into a usable schema.
var ErrCodec = errors.New("codec error")

// Codec pairs a fallible encoder and decoder for a single Go type T. Both
// operations are pure and total over their declared domain; failures are
// reported as ErrCodec.
type Codec[T any] struct {
	name   string
	encode func(T) ([]byte, error)
	decode func([]byte) (T, error)
}

// Encode turns v into its wire representation.
func (c Codec[T]) Encode(v T) ([]byte, error) {
	out, err := c.encode(v)
	if err != nil {
		return nil, errors.Wrapf(ErrCodec, "%s encode: %s", c.name, err)
	}
	return out, nil
}

// Decode restores a value of type T from its wire representation.
func (c Codec[T]) Decode(data []byte) (T, error) {
	v, err := c.decode(data)
	if err != nil {
		return v, errors.Wrapf(ErrCodec, "%s decode: %s", c.name, err)
	}
	return v, nil
}

// Bytes returns the identity codec: input data is passed through
// unmodified, opaque to the transport.
func Bytes() Codec[[]byte] {
	return Codec[[]byte]{
		name:   "bytes",
		encode: func(v []byte) ([]byte, error) { return v, nil },
		decode: func(data []byte) ([]byte, error) { return data, nil },
	}
}

// String returns a codec that encodes/decodes plain UTF-8 text.
func String() Codec[string] {
	return Codec[string]{
		name:   "string",
		encode: func(v string) ([]byte, error) { return []byte(v), nil },
		decode: func(data []byte) (string, error) {
			if !utf8.Valid(data) {
				return "", errors.New("invalid utf-8 payload")
			}
			return string(data), nil
		},
	}
}

// JSONMap returns a codec for untyped JSON objects, encoded as UTF-8 JSON.
func JSONMap() Codec[map[string]any] {
	return Codec[map[string]any]{
		name:   "json-map",
		encode: func(v map[string]any) ([]byte, error) { return json.Marshal(v) },
		decode: func(data []byte) (map[string]any, error) {
			var v map[string]any
			err := json.Unmarshal(data, &v)
			return v, err
		},
	}
}

// Record returns a codec for a structured, schema-validated record type T.
// The JSON Schema for T is reflected from its Go type once, at call time —
// never at dispatch time — using struct tags via invopop/jsonschema; encode
// and decode both validate the JSON document against the compiled schema
// with santhosh-tekuri/jsonschema/v6. A T that cannot be reflected into a
// usable object/array/scalar schema makes Record itself fail, satisfying
// the "never at dispatch time" requirement for registration-time errors.
func Record[T any]() (Codec[T], error) {
	var zero T
	schema, err := compileSchema[T]()
	if err != nil {
		return Codec[T]{}, errors.Wrapf(ErrCodec, "record schema: %s", err)
	}

	return Codec[T]{
		name: "record",
		encode: func(v T) ([]byte, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			if err := validate(schema, data); err != nil {
				return nil, err
			}
			return data, nil
		},
		decode: func(data []byte) (T, error) {
			if err := validate(schema, data); err != nil {
				return zero, err
			}
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return zero, err
			}
			return v, nil
		},
	}, nil
}

// compileSchema reflects T's JSON Schema and compiles it once.
func compileSchema[T any]() (*schemaValidator.Schema, error) {
	var zero T
	// DoNotReference inlines all definitions so the compiled document is
	// self-contained and works for scalar roots, not just structs.
	reflector := jsonschema.Reflector{DoNotReference: true}
	raw := reflector.Reflect(&zero)
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}

	const resourceID = "tacoq://record.json"
	compiler := schemaValidator.NewCompiler()
	res, err := schemaValidator.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, err
	}
	if err := compiler.AddResource(resourceID, res); err != nil {
		return nil, err
	}
	return compiler.Compile(resourceID)
}

// validate decodes data into untyped JSON values (as required by
// jsonschema/v6's Validate) and checks it against schema.
func validate(schema *schemaValidator.Schema, data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return err
	}
	return schema.Validate(instance)
}
