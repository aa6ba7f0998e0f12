package hydrate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starfall-labs/relay-memory/internal/model"
)

// starThreshold is the score at or above which a record renders with the
// high-salience marker.
const starThreshold = 0.8

// renderRecord formats one memory record as a bundle line.
func renderRecord(rec model.MemoryRecord) string {
	star := ""
	if rec.Score >= starThreshold {
		star = "⭐"
	}
	return fmt.Sprintf("[%s] %s (%s)%s: %s",
		rec.CreatedAt.Format("2006-01-02 15:04"), rec.Scope, rec.Kind, star, rec.Content)
}

func sortedFields(profile map[string]model.ProfileField) []string {
	fields := make([]string, 0, len(profile))
	for f := range profile {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Text renders the bundle in its prompt form: section headers with their
// items, in assembly priority order. The rendered length never exceeds the
// bundle budget.
func (b *Bundle) Text() string {
	var sb strings.Builder
	for i, sec := range b.Sections {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(sec.Header)
		sb.WriteString("\n")
		for _, it := range sec.Items {
			sb.WriteString(it.Text)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
