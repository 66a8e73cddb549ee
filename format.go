package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const defaultLang = "en"

// sizeUnits are the unit names per output language, smallest first.
var sizeUnits = map[string][]string{
	"en": {"bytes", "KB", "MB", "GB"},
	"ru": {"байт", "КБ", "МБ", "ГБ"},
	"kk": {"байт", "КБ", "МБ", "ГБ"},
}

// locale formats numbers and sizes for one output language.
type locale struct {
	lang    string
	printer *message.Printer
	units   []string
}

// newLocale accepts en, ru, and kk. "kz" is taken as kk.
func newLocale(lang string) (*locale, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "kz" {
		lang = "kk"
	}

	units, ok := sizeUnits[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language %q (want en, ru, or kk)", lang)
	}

	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parsing language %q: %w", lang, err)
	}

	return &locale{lang: lang, printer: message.NewPrinter(tag), units: units}, nil
}

func mustLocale(lang string) *locale {
	l, err := newLocale(lang)
	if err != nil {
		panic(err)
	}

	return l
}

// size returns a human-readable size with at most one decimal, e.g.
// "1.5 MB" or, in Russian, "1,5 МБ".
func (l *locale) size(bytes int64) string {
	if bytes <= 0 {
		return l.printer.Sprintf("%d %s", bytes, l.units[0])
	}

	const k = 1024

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(k)))
	if i >= len(l.units) {
		i = len(l.units) - 1
	}

	v := float64(bytes) / math.Pow(k, float64(i))

	return l.printer.Sprintf("%v %s", number.Decimal(v, number.MaxFractionDigits(1)), l.units[i])
}

// count formats an integer with the language's digit grouping.
func (l *locale) count(n int64) string {
	return l.printer.Sprintf("%v", number.Decimal(n))
}

// formatTime returns a compact local timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.Local()

	if t.Year() == time.Now().Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// stdoutIsTerminal reports whether stdout is an interactive terminal.
// Tables get headers only when it is.
func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length. A nil headers slice
// prints rows only.
func printTable(w io.Writer, headers []string, rows [][]string) {
	n := len(headers)
	if n == 0 && len(rows) > 0 {
		n = len(rows[0])
	}

	widths := make([]int, n)
	for i, h := range headers {
		widths[i] = displayWidth(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			if cw := displayWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	if headers != nil {
		printRow(w, headers, widths)
	}

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = cell + strings.Repeat(" ", widths[i]-displayWidth(cell))
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// displayWidth counts runes so Cyrillic units align.
func displayWidth(s string) int {
	return len([]rune(s))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}

	return nil
}
