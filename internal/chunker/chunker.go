// Package chunker splits context documents into the units the digestion
// pipeline turns into individual memory records. Units follow the document's
// own structure (headings, paragraph breaks) so each distilled record reads
// as one coherent statement.
package chunker

import (
	"strings"
)

const (
	DefaultTargetSize = 400
	DefaultMinSize    = 80
	DefaultMaxSize    = 600
)

// Options configures unit sizing, in characters.
type Options struct {
	TargetSize int
	MinSize    int
	MaxSize    int
}

// DefaultOptions returns the stock sizing.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MinSize:    DefaultMinSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Unit is one digestible piece of a document with its position.
type Unit struct {
	Text      string
	StartLine int
	EndLine   int
}

// Split breaks a document into units. Short documents (<= MaxSize) come back
// as a single unit.
func Split(text string, opts Options) []Unit {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= opts.MaxSize {
		return []Unit{unitAt(text, 1)}
	}

	units := coalesce(sections(text), opts)

	// A stray tail smaller than MinSize folds into its predecessor rather
	// than becoming a near-empty record.
	if n := len(units); n > 1 && len(units[n-1].Text) < opts.MinSize {
		prev := &units[n-2]
		prev.Text += "\n\n" + units[n-1].Text
		prev.EndLine = units[n-1].EndLine
		units = units[:n-1]
	}
	return units
}

func unitAt(text string, startLine int) Unit {
	return Unit{Text: text, StartLine: startLine, EndLine: startLine + strings.Count(text, "\n")}
}

// section is one structural slice of the document: a heading-led region or a
// paragraph group bounded by runs of blank lines.
type section struct {
	lines []string
	start int
}

func (s section) text() string {
	return strings.TrimSpace(strings.Join(s.lines, "\n"))
}

// sections cuts the document at heading lines and at the second blank line of
// a blank run. A single blank line stays inside its section.
func sections(text string) []section {
	lines := strings.Split(text, "\n")

	var out []section
	cur := section{start: 1}
	blanks := 0

	cut := func(next int) {
		if cur.text() != "" {
			out = append(out, cur)
		}
		cur = section{start: next}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#") && len(cur.lines) > 0:
			cut(i + 1)
			blanks = 0
		case trimmed == "":
			blanks++
			if blanks >= 2 && len(cur.lines) > 0 {
				cut(i + 1)
			}
		default:
			blanks = 0
		}
		cur.lines = append(cur.lines, line)
	}
	cut(len(lines) + 1)

	return out
}

// coalesce greedily joins adjacent sections up to TargetSize, then hard-splits
// anything still over MaxSize.
func coalesce(secs []section, opts Options) []Unit {
	var units []Unit

	emit := func(text string, start int) {
		switch {
		case text == "":
		case len(text) > opts.MaxSize:
			units = append(units, splitLong(text, start, opts.TargetSize)...)
		default:
			units = append(units, unitAt(text, start))
		}
	}

	var pending string
	var pendingStart int
	for _, sec := range secs {
		t := sec.text()
		if pending == "" {
			pending, pendingStart = t, sec.start
			continue
		}
		if joined := pending + "\n\n" + t; len(joined) <= opts.TargetSize {
			pending = joined
			continue
		}
		emit(pending, pendingStart)
		pending, pendingStart = t, sec.start
	}
	emit(pending, pendingStart)

	return units
}

// splitLong packs the lines of an oversized section into units of roughly
// target characters. Cuts land on line boundaries only, never mid-line.
func splitLong(text string, start, target int) []Unit {
	var units []Unit
	var buf []string
	size := 0
	bufStart := start

	take := func(endLine int) {
		if t := strings.TrimSpace(strings.Join(buf, "\n")); t != "" {
			units = append(units, Unit{Text: t, StartLine: bufStart, EndLine: endLine})
		}
		buf, size = nil, 0
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if size+len(line) > target && len(buf) > 0 {
			take(start + i - 1)
			bufStart = start + i
		}
		buf = append(buf, line)
		size += len(line) + 1
	}
	take(start + len(lines) - 1)

	return units
}
