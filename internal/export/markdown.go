// Package export renders journal entries as a Markdown document.
package export

import (
	"fmt"
	"strings"

	"hourlog/internal/core"
)

// Markdown builds the export document for every calendar date in
// [start, end] inclusive. A date section is emitted when the date has at
// least one entry, or unconditionally when includeEmpty is set; the same rule
// applies per hour within a section. Returns core.ErrInvalidRange when the
// bounds do not parse or start is after end.
func Markdown(all core.AllEntries, start, end string, includeEmpty bool) (string, error) {
	s, err := core.ParseDate(start)
	if err != nil {
		return "", core.ErrInvalidRange
	}
	e, err := core.ParseDate(end)
	if err != nil {
		return "", core.ErrInvalidRange
	}
	if s.After(e) {
		return "", core.ErrInvalidRange
	}

	lines := []string{
		"# Journal Export",
		fmt.Sprintf("Range: %s to %s", start, end),
		"",
	}

	for d := s; !d.After(e); d = d.AddDate(0, 0, 1) {
		date := d.Format(core.DateLayout)
		day := all[date]
		if len(day) == 0 && !includeEmpty {
			continue
		}
		lines = append(lines, "", "## "+date)
		for hour := core.MinHour; hour <= core.MaxHour; hour++ {
			text, ok := day[hour]
			if !ok && !includeEmpty {
				continue
			}
			lines = append(lines, "", fmt.Sprintf("### %02d:00", hour), text)
		}
	}

	return strings.Join(lines, "\n"), nil
}

// Filename suggests a download name for the exported range.
func Filename(start, end string) string {
	strip := func(s string) string { return strings.ReplaceAll(s, "-", "") }
	return fmt.Sprintf("journal-%s-%s.md", strip(start), strip(end))
}
