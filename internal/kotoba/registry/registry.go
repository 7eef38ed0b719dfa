// Package registry is the static catalog of operations the dispatch layer can
// invoke: name, human-readable description and argument schema.
//
// The catalog is pure data. It is parsed once from the embedded
// operations.yaml and never mutated afterwards; every accessor hands out
// copies. The same ordered list is used for display and as the tool list
// offered to the language model, so the YAML order is significant.
//
// Adding an operation means adding both its catalog entry and its handler in
// package ops; ops.NewExecutor refuses to start when the two disagree.
package registry

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

// Operation names. They double as tool names in the LLM protocol.
const (
	Signup          = "signup"
	Signin          = "signin"
	FetchMe         = "fetchMe"
	FetchNotice     = "fetchNotice"
	HideNotice      = "hideNotice"
	FetchTimeline   = "fetchTimeline"
	FetchPostDetail = "fetchPostDetail"
	CreatePost      = "createPost"
	PostReply       = "postReply"
	LikePost        = "likePost"
	Repost          = "repost"
	QuotePost       = "quotePost"
	SearchPosts     = "searchPosts"
	SearchUsers     = "searchUsers"
)

//go:embed operations.yaml
var catalogYAML []byte

// ParamType is the JSON type of an operation argument.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// Param describes one argument of an operation.
type Param struct {
	Name        string    `yaml:"name"`
	Type        ParamType `yaml:"type"`
	Required    bool      `yaml:"required"`
	Description string    `yaml:"description"`
}

// Operation is one named backend action with a fixed argument schema.
type Operation struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Params      []Param `yaml:"params"`
}

// Param returns the parameter called name.
func (o Operation) Param(name string) (Param, bool) {
	for _, p := range o.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Required returns the names of the required parameters in declaration order.
func (o Operation) Required() []string {
	var out []string
	for _, p := range o.Params {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

// Schema returns the JSON Schema object describing the operation's argument
// bag. It is used verbatim as the "parameters" field of the tool
// definition and compiled by the Executor for argument validation.
//
// Unknown properties are tolerated: the LLM resolver decorates some bags with
// the caller's user id even when the operation does not declare it.
func (o Operation) Schema() map[string]any {
	props := make(map[string]any, len(o.Params))
	for _, p := range o.Params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := o.Required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

func (o Operation) clone() Operation {
	cp := o
	cp.Params = append([]Param(nil), o.Params...)
	return cp
}

// Registry is an ordered, read-only set of operations.
type Registry struct {
	ops   []Operation
	index map[string]int
}

type catalogFile struct {
	Operations []Operation `yaml:"operations"`
}

// Parse builds a Registry from a YAML catalog document.
func Parse(data []byte) (*Registry, error) {
	var doc catalogFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("registry: parse catalog: %w", err)
	}
	if len(doc.Operations) == 0 {
		return nil, fmt.Errorf("registry: catalog defines no operations")
	}

	r := &Registry{
		ops:   make([]Operation, 0, len(doc.Operations)),
		index: make(map[string]int, len(doc.Operations)),
	}
	for _, op := range doc.Operations {
		if err := validateOperation(op); err != nil {
			return nil, err
		}
		if _, dup := r.index[op.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate operation %q", op.Name)
		}
		r.index[op.Name] = len(r.ops)
		r.ops = append(r.ops, op.clone())
	}
	return r, nil
}

func validateOperation(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("registry: operation with empty name")
	}
	if op.Description == "" {
		return fmt.Errorf("registry: operation %q has no description", op.Name)
	}
	seen := make(map[string]struct{}, len(op.Params))
	for _, p := range op.Params {
		if p.Name == "" {
			return fmt.Errorf("registry: operation %q has a parameter with empty name", op.Name)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("registry: operation %q declares parameter %q twice", op.Name, p.Name)
		}
		seen[p.Name] = struct{}{}
		switch p.Type {
		case TypeString, TypeNumber, TypeBoolean:
		default:
			return fmt.Errorf("registry: operation %q parameter %q has unsupported type %q", op.Name, p.Name, p.Type)
		}
	}
	return nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry parsed from the embedded catalog.
// It panics if the embedded catalog is malformed, which is a build defect.
func Default() *Registry {
	defaultOnce.Do(func() {
		r, err := Parse(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultReg = r
	})
	return defaultReg
}

// List returns every operation in catalog order.
func (r *Registry) List() []Operation {
	out := make([]Operation, len(r.ops))
	for i, op := range r.ops {
		out[i] = op.clone()
	}
	return out
}

// Lookup returns the operation called name.
func (r *Registry) Lookup(name string) (Operation, bool) {
	i, ok := r.index[name]
	if !ok {
		return Operation{}, false
	}
	return r.ops[i].clone(), true
}

// Has reports whether name is a registered operation.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Names returns the operation names in catalog order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.ops))
	for i, op := range r.ops {
		out[i] = op.Name
	}
	return out
}

// Len returns the number of operations.
func (r *Registry) Len() int { return len(r.ops) }
