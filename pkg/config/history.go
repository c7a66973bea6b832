package config

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// HistoryEntry records one committed mutation of a field: the plain-form
// snapshot of the new value, where the call came from, and a short label
// naming the kind of event ("assignment", "default", "load", "loadDict",
// "retarget").
type HistoryEntry struct {
	Value  any
	Origin provenance.Origin
	Label  string
}

// FormatHistory renders a field's history as an aligned plain-text table,
// one row per entry, oldest first. The header names the field and its type;
// deprecated fields get an extra notice line.
func FormatHistory(c *Config, field string) (string, error) {
	f, err := c.field(field)
	if err != nil {
		return "", err
	}
	entries, err := c.History(field)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)\n", c.fieldPath(field), f.TypeName())
	if note := f.Deprecated(); note != "" {
		fmt.Fprintf(&b, "deprecated: %s\n", note)
	}
	tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
	for _, e := range entries {
		origin := "unknown"
		if !e.Origin.IsZero() {
			origin = e.Origin.String()
		}
		fmt.Fprintf(tw, "%v\t%s\t%s\n", e.Value, e.Label, origin)
	}
	tw.Flush()
	return b.String(), nil
}
