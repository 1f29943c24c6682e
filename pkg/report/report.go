// Package report renders expansion and extraction tables as aligned text.
// The engine itself never formats; this package is the presentation layer
// consumed by the multiverse command.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"

	"github.com/speakeasy-api/multiverse"
)

// Universes writes the expansion as a table with one row per valid universe
// and one column per parameter, in declaration order.
func Universes(w io.Writer, universes []multiverse.Universe, params []multiverse.ParameterInfo) {
	headers := make([]string, 0, len(params)+1)
	headers = append(headers, "universe")
	for _, p := range params {
		headers = append(headers, p.Name)
	}

	rows := make([][]string, 0, len(universes))
	for _, u := range universes {
		row := make([]string, 0, len(headers))
		row = append(row, fmt.Sprintf("%d", u.ID))
		for _, p := range params {
			row = append(row, u.Assignment[p.Name])
		}
		rows = append(rows, row)
	}
	writeTable(w, headers, rows)
}

// Extraction writes an extraction as a table joining each universe's
// assignment with the extracted value and its status.
func Extraction(w io.Writer, ex *multiverse.Extraction, params []multiverse.ParameterInfo) {
	headers := make([]string, 0, len(params)+3)
	headers = append(headers, "universe")
	for _, p := range params {
		headers = append(headers, p.Name)
	}
	headers = append(headers, ex.Variable, "status")

	rows := make([][]string, 0, len(ex.Rows))
	for _, r := range ex.Rows {
		row := make([]string, 0, len(headers))
		id := fmt.Sprintf("%d", r.UniverseID)
		if r.Index > 0 {
			id = fmt.Sprintf("%d.%d", r.UniverseID, r.Index)
		}
		row = append(row, id)
		for _, p := range params {
			row = append(row, r.Assignment[p.Name])
		}
		if r.Bound {
			row = append(row, FormatValue(r.Value))
		} else {
			row = append(row, "-")
		}
		row = append(row, status(r))
		rows = append(rows, row)
	}
	writeTable(w, headers, rows)
}

func status(r multiverse.VariableRow) string {
	switch {
	case !r.Executed:
		return "not executed"
	case r.Err != nil:
		return "error: " + r.Err.Error()
	case !r.Bound:
		return "unbound"
	default:
		return "ok"
	}
}

// FormatValue renders a bound value as a single table cell.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(raw)
}

// writeTable writes an aligned table. Column widths account for wide runes
// via runewidth; headers are emphasized when the writer is a terminal.
func writeTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				if cw := runewidth.StringWidth(cell); cw > widths[i] {
					widths[i] = cw
				}
			}
		}
	}

	bold := isTerminal(w)
	var b strings.Builder
	for i, h := range headers {
		if i > 0 {
			b.WriteString("  ")
		}
		cell := runewidth.FillRight(h, widths[i])
		if bold {
			cell = "\x1b[1m" + cell + "\x1b[0m"
		}
		b.WriteString(cell)
	}
	b.WriteByte('\n')
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		b.WriteByte('\n')
	}
	_, _ = io.WriteString(w, b.String())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
