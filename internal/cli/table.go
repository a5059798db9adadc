package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/list"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const emptyText = "(none)\n"

// Table renders rows under fixed headers. Text output is a go-pretty grid;
// JSON output is one object per row keyed by snake_cased header.
type Table struct {
	frame
	headers []string
	rows    [][]string
	right   []int
}

func (t *Table) AddRow(values ...string) *Table {
	t.rows = append(t.rows, values)
	return t
}

// AlignRight right-aligns the columns whose headers match, ignoring case.
// Unknown headers are skipped.
func (t *Table) AlignRight(headers ...string) *Table {
	for i, h := range t.headers {
		if slices.ContainsFunc(headers, func(want string) bool { return strings.EqualFold(want, h) }) &&
			!slices.Contains(t.right, i) {
			t.right = append(t.right, i)
		}
	}
	return t
}

func (t *Table) WithPagination(cursor string, hasMore bool) *Table {
	t.meta = t.meta.WithPagination(cursor, hasMore)
	return t
}

func (t *Table) Len() int { return len(t.rows) }

func (t *Table) Render() error { return t.out.Render(t) }

func (t *Table) RenderText(w io.Writer) error {
	if len(t.rows) == 0 {
		_, err := io.WriteString(w, emptyText)
		return err
	}
	tw := t.writer()
	tw.SetStyle(table.StyleLight)
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func (t *Table) RenderJSON() any {
	keys := make([]string, len(t.headers))
	for i, h := range t.headers {
		keys[i] = toJSONKey(h)
	}
	out := make([]map[string]string, len(t.rows))
	for r, row := range t.rows {
		obj := make(map[string]string, len(keys))
		for i, cell := range row[:min(len(row), len(keys))] {
			obj[keys[i]] = cell
		}
		out[r] = obj
	}
	return out
}

func (t *Table) RenderMarkdown(w io.Writer) error {
	_, err := fmt.Fprintln(w, t.writer().RenderMarkdown())
	return err
}

func (t *Table) writer() table.Writer {
	tw := table.NewWriter()
	tw.AppendHeader(cells(t.headers))
	for _, row := range t.rows {
		tw.AppendRow(cells(row))
	}
	configs := make([]table.ColumnConfig, 0, len(t.right))
	for _, i := range t.right {
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight, AlignHeader: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

func cells(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

// StringList renders a flat list of names, such as role holders.
type StringList struct {
	frame
	items []string
}

func (l *StringList) Add(items ...string) *StringList {
	l.items = append(l.items, items...)
	return l
}

func (l *StringList) Render() error { return l.out.Render(l) }

func (l *StringList) RenderText(w io.Writer) error {
	if len(l.items) == 0 {
		_, err := io.WriteString(w, emptyText)
		return err
	}
	_, err := fmt.Fprintln(w, l.writer(list.StyleBulletCircle).Render())
	return err
}

func (l *StringList) RenderJSON() any {
	if l.items == nil {
		return []string{}
	}
	return l.items
}

func (l *StringList) RenderMarkdown(w io.Writer) error {
	_, err := fmt.Fprintln(w, l.writer(list.StyleMarkdown).RenderMarkdown())
	return err
}

func (l *StringList) writer(style list.Style) list.Writer {
	lw := list.NewWriter()
	lw.SetStyle(style)
	for _, item := range l.items {
		lw.AppendItem(item)
	}
	return lw
}
