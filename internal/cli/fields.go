package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

type field struct {
	key   string
	value any
}

// fields is an ordered list of labelled values shared by KV, Result and
// Error.
type fields []field

func (fs *fields) add(key string, value any) {
	*fs = append(*fs, field{key, value})
}

// table lays the fields out as an unbordered "Key:  value" grid.
func (fs fields) table() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.Style().Options = table.OptionsNoBordersAndSeparators
	for _, f := range fs {
		tw.AppendRow(table.Row{f.key + ":", display(f.value)})
	}
	return tw.Render()
}

func (fs fields) object() map[string]any {
	obj := make(map[string]any, len(fs)+2)
	for _, f := range fs {
		obj[toJSONKey(f.key)] = f.value
	}
	return obj
}

// each writes one line per field, formatting key and value with layout.
func (fs fields) each(w io.Writer, layout string, value func(any) string) error {
	for _, f := range fs {
		if _, err := fmt.Fprintf(w, layout, f.key, value(f.value)); err != nil {
			return err
		}
	}
	return nil
}

// display formats a value for text output. Missing values show as "-".
func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// displayMarkdown code-formats digests and escapes table pipes.
func displayMarkdown(v any) string {
	s := display(v)
	if isDigest(s) {
		return "`" + s + "`"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func isDigest(s string) bool {
	return len(s) >= 16 && strings.Trim(s, "0123456789abcdef") == ""
}

// toJSONKey turns a column label into a snake_case key.
func toJSONKey(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(label), "_"))
}

// KV renders labelled values in insertion order.
type KV struct {
	frame
	fields fields
}

func (k *KV) Set(key string, value any) *KV {
	k.fields.add(key, value)
	return k
}

func (k *KV) Render() error { return k.out.Render(k) }

func (k *KV) RenderText(w io.Writer) error {
	if len(k.fields) == 0 {
		return nil
	}
	_, err := fmt.Fprintln(w, k.fields.table())
	return err
}

func (k *KV) RenderJSON() any { return k.fields.object() }

func (k *KV) RenderMarkdown(w io.Writer) error {
	return k.fields.each(w, "**%s:** %s\n\n", displayMarkdown)
}
