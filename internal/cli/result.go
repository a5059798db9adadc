package cli

import (
	"fmt"
	"io"
)

// Result reports a completed mutation: a one-line message and its details.
type Result struct {
	frame
	message string
	details fields
}

func (r *Result) With(key string, value any) *Result {
	r.details.add(key, value)
	return r
}

func (r *Result) Render() error { return r.out.Render(r) }

func (r *Result) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.message); err != nil {
		return err
	}
	width := 0
	for _, d := range r.details {
		width = max(width, len(d.key)+1)
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "  %-*s  %s\n", width, d.key+":", display(d.value)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) RenderJSON() any {
	obj := r.details.object()
	obj["message"] = r.message
	return obj
}

func (r *Result) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**%s**\n\n", r.message); err != nil {
		return err
	}
	return r.details.each(w, "- **%s:** %s\n", displayMarkdown)
}

// Error is a failed command rendered with the stable code of its cause.
type Error struct {
	frame
	err     error
	code    string
	details fields
}

// Code is the ledger error code, such as INSUFFICIENT_BALANCE or INTERNAL.
func (e *Error) Code() string { return e.code }

func (e *Error) With(key string, value any) *Error {
	e.details.add(key, value)
	return e
}

func (e *Error) Render() error { return e.out.Render(e) }

func (e *Error) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "Error [%s]: %v\n", e.code, e.err); err != nil {
		return err
	}
	return e.details.each(w, "  %s: %s\n", display)
}

func (e *Error) RenderJSON() any {
	obj := e.details.object()
	obj["code"] = e.code
	obj["error"] = e.err.Error()
	return obj
}

func (e *Error) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "> **Error [%s]:** %v\n", e.code, e.err); err != nil {
		return err
	}
	if len(e.details) == 0 {
		return nil
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return e.details.each(w, "- %s: %s\n", display)
}
