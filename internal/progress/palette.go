package progress

import (
	"sort"

	"example.com/studytrack/internal/domain"
)

// FallbackColor is used for sessions that are not part of the assignment,
// such as activities whose session is missing from the list.
const FallbackColor = "#94a3b8"

// Palette is an ordered list of display colours.
type Palette []string

// DefaultPalette mirrors the accent colours of the web client.
var DefaultPalette = Palette{
	"#3b82f6", // blue
	"#8b5cf6", // violet
	"#10b981", // emerald
	"#f59e0b", // amber
	"#ef4444", // red
	"#ec4899", // pink
	"#06b6d4", // cyan
	"#84cc16", // lime
}

// Assign maps each session id to a colour by its creation order, wrapping
// around the palette. The result depends only on the sessions' creation order,
// never on the order of the input slice.
func (p Palette) Assign(sessions []domain.Session) map[string]string {
	ordered := byCreation(sessions)
	out := make(map[string]string, len(ordered))
	if len(p) == 0 {
		for _, s := range ordered {
			out[s.ID] = FallbackColor
		}
		return out
	}
	for i, s := range ordered {
		out[s.ID] = p[i%len(p)]
	}
	return out
}

func colorFor(colors map[string]string, sessionID string) string {
	if c, ok := colors[sessionID]; ok {
		return c
	}
	return FallbackColor
}

// byCreation returns a copy of sessions ordered by creation time, then id.
func byCreation(sessions []domain.Session) []domain.Session {
	ordered := make([]domain.Session, len(sessions))
	copy(ordered, sessions)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}
