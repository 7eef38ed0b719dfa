package ops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

const schemaBaseURL = "https://kotoba.invalid/operations/"

// argError is an argument bag that failed the schema or could not be
// decoded. Its message is user-facing.
type argError struct {
	msg string
	err error
}

func (e *argError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + describe(e.err)
}

func (e *argError) Unwrap() error { return e.err }

type compiledSchema struct {
	schema *jsonschema.Schema
}

func compileSchema(op registry.Operation) (*compiledSchema, error) {
	doc, err := json.Marshal(op.Schema())
	if err != nil {
		return nil, err
	}
	url := schemaBaseURL + op.Name + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	return &compiledSchema{schema: s}, nil
}

// check normalises args, validates them against the operation schema and
// returns the JSON object handed to the handler.
//
// Normalisation round-trips the bag through JSON so Go-typed values from the
// fallback resolver and decoded values from the model look the same to the
// validator. Scalars are then coerced where the intent is unambiguous: a
// number given for a string parameter becomes its decimal text, and a numeric
// string given for a number parameter becomes a number.
func (s *compiledSchema) check(op registry.Operation, args Args) ([]byte, error) {
	if args == nil {
		args = Args{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, &argError{msg: "引数を解釈できません", err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var bag map[string]any
	if err := dec.Decode(&bag); err != nil {
		return nil, &argError{msg: "引数を解釈できません", err: err}
	}
	coerce(op, bag)

	if err := s.schema.Validate(bag); err != nil {
		return nil, &argError{msg: "引数が不正です", err: err}
	}
	return json.Marshal(bag)
}

func coerce(op registry.Operation, bag map[string]any) {
	for _, p := range op.Params {
		v, ok := bag[p.Name]
		if !ok {
			continue
		}
		switch p.Type {
		case registry.TypeString:
			if n, ok := v.(json.Number); ok {
				bag[p.Name] = n.String()
			}
		case registry.TypeNumber:
			if str, ok := v.(string); ok {
				str = strings.TrimSpace(str)
				if _, err := strconv.ParseFloat(str, 64); err == nil {
					bag[p.Name] = json.Number(str)
				}
			}
		}
	}
}

// describe flattens a schema validation error into "location: message"
// parts.
func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	var parts []string
	var walk func(v *jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			loc := strings.TrimPrefix(v.InstanceLocation, "/")
			if loc == "" {
				parts = append(parts, v.Message)
			} else {
				parts = append(parts, fmt.Sprintf("%s: %s", loc, v.Message))
			}
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(parts, "; ")
}
