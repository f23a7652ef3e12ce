// Package pipeline compiles configuration documents into a store snapshot
// and an ordered list of render blocks.
package pipeline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/twmb/murmur3"

	"github.com/coreman2200/ledmatrix/internal/blocks"
	"github.com/coreman2200/ledmatrix/internal/store"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/coreman2200/ledmatrix/pipeline.schema.json"

// Document is the decoded form of a configuration document.
type Document struct {
	Vars       store.Snapshot      `json:"vars"`
	Primitives []blocks.Descriptor `json:"primitives"`
}

// Pipeline is the result of a successful build. Blocks run in order.
type Pipeline struct {
	Snapshot    store.Snapshot
	Blocks      []blocks.Block
	Fingerprint string
}

// SchemaError reports a document that does not match the document schema.
type SchemaError struct{ Err error }

func (e *SchemaError) Error() string { return "document schema: " + e.Err.Error() }
func (e *SchemaError) Unwrap() error { return e.Err }

var ErrEmpty = errors.New("empty document")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Builder turns documents into pipelines using a block registry.
type Builder struct {
	Registry *blocks.Registry
}

func NewBuilder() *Builder { return &Builder{Registry: blocks.Default()} }

// Build validates and compiles raw. Either the whole pipeline is returned or
// an error; nothing is partially constructed.
func (b *Builder) Build(raw []byte) (*Pipeline, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmpty
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var doc Document
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode document: trailing data")
	}

	p, err := b.Compile(doc)
	if err != nil {
		return nil, err
	}
	p.Fingerprint = Fingerprint(raw)
	return p, nil
}

// Compile builds an already decoded document. The fingerprint is left empty.
func (b *Builder) Compile(doc Document) (*Pipeline, error) {
	if err := store.Validate(doc.Vars); err != nil {
		return nil, fmt.Errorf("vars: %w", err)
	}
	counts := doc.Vars.Counts()
	out := make([]blocks.Block, 0, len(doc.Primitives))
	for i, d := range doc.Primitives {
		blk, err := b.Registry.Build(i, d, counts)
		if err != nil {
			return nil, err
		}
		out = append(out, blk)
	}
	return &Pipeline{Snapshot: doc.Vars.Clone(), Blocks: out}, nil
}

// Build compiles raw with the default block set.
func Build(raw []byte) (*Pipeline, error) { return NewBuilder().Build(raw) }

// LoadFile reads a document from disk. It does not build it.
func LoadFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return b, nil
}

// Validate checks raw against the document schema.
func Validate(raw []byte) error {
	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return &SchemaError{Err: err}
	}
	if err := sch.Validate(v); err != nil {
		return &SchemaError{Err: err}
	}
	return nil
}

// Fingerprint is a short content hash of a raw document.
func Fingerprint(raw []byte) string {
	h := murmur3.New64()
	h.Write(raw)
	return strconv.FormatUint(h.Sum64(), 16)
}
