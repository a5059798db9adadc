// Package cli renders command results and opens the node behind each
// arc-ledger command.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	ledgererr "github.com/gezibash/arc-ledger/pkg/errors"
)

// Format selects how results are written.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

var formats = map[string]Format{
	"":         FormatText,
	"text":     FormatText,
	"json":     FormatJSON,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
}

// ParseFormat resolves an --output value. Empty means text.
func ParseFormat(s string) (Format, error) {
	if f, ok := formats[s]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q: %w", s, ledgererr.ErrInvalidInput)
}

// Meta is the envelope written around JSON data and as markdown
// frontmatter. Head is the event sequence the result was read at.
type Meta struct {
	Type      string    `json:"type" yaml:"type"`
	Version   string    `json:"version,omitempty" yaml:"version,omitempty"`
	Generated time.Time `json:"generated" yaml:"generated"`
	Head      uint64    `json:"head,omitempty" yaml:"head,omitempty"`
	Cursor    string    `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	HasMore   bool      `json:"has_more,omitempty" yaml:"has_more,omitempty"`
}

// NewMeta stamps a result type with the current time.
func NewMeta(resultType string) Meta {
	return Meta{Type: resultType, Version: "v1", Generated: time.Now().UTC()}
}

// WithPagination returns a copy of m carrying the next-page cursor.
func (m Meta) WithPagination(cursor string, hasMore bool) Meta {
	m.Cursor, m.HasMore = cursor, hasMore
	return m
}

// Renderable is anything Output can write in every format.
type Renderable interface {
	Meta() Meta
	RenderText(w io.Writer) error
	RenderJSON() any
	RenderMarkdown(w io.Writer) error
}

// Output writes renderables to one destination in one format.
type Output struct {
	format Format
	w      io.Writer
	head   uint64
}

func NewOutput(format Format, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

func (o *Output) Format() Format { return o.format }

func (o *Output) Writer() io.Writer { return o.w }

// SetHead records the event head stamped into results created afterwards.
func (o *Output) SetHead(head uint64) {
	o.head = head
}

// frame is the part every renderer shares: where it goes and its envelope.
type frame struct {
	out  *Output
	meta Meta
}

func (f frame) Meta() Meta { return f.meta }

func (o *Output) frame(resultType string) frame {
	m := NewMeta(resultType)
	m.Head = o.head
	return frame{out: o, meta: m}
}

func (o *Output) Table(resultType string, headers ...string) *Table {
	return &Table{frame: o.frame(resultType), headers: headers}
}

func (o *Output) KV(resultType string) *KV {
	return &KV{frame: o.frame(resultType)}
}

func (o *Output) StringList(resultType string) *StringList {
	return &StringList{frame: o.frame(resultType)}
}

func (o *Output) Result(resultType, message string) *Result {
	return &Result{frame: o.frame(resultType), message: message}
}

// Error renders err under resultType+"-error" with the code of the ledger
// sentinel it wraps.
func (o *Output) Error(resultType string, err error) *Error {
	return &Error{frame: o.frame(resultType + "-error"), err: err, code: ledgererr.Code(err)}
}

// Render writes r in the configured format. Text output ends with a
// --after hint when more pages exist.
func (o *Output) Render(r Renderable) error {
	switch o.format {
	case FormatJSON:
		return o.writeEnvelope(r)
	case FormatMarkdown:
		if err := o.writeFrontmatter(r.Meta()); err != nil {
			return err
		}
		return r.RenderMarkdown(o.w)
	}

	if err := r.RenderText(o.w); err != nil {
		return err
	}
	if m := r.Meta(); m.HasMore && m.Cursor != "" {
		_, err := fmt.Fprintf(o.w, "\nMore results: --after=%s\n", m.Cursor)
		return err
	}
	return nil
}

func (o *Output) writeEnvelope(r Renderable) error {
	b, err := json.MarshalIndent(struct {
		Meta Meta `json:"meta"`
		Data any  `json:"data"`
	}{r.Meta(), r.RenderJSON()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.Meta().Type, err)
	}
	_, err = o.w.Write(append(b, '\n'))
	return err
}

func (o *Output) writeFrontmatter(m Meta) error {
	b, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode frontmatter: %w", err)
	}
	_, err = fmt.Fprintf(o.w, "---\n%s---\n\n", b)
	return err
}
