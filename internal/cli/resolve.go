// Package cli provides CLI helpers for resolving IDs and names.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tOgg1/gradebook/internal/db"
	"github.com/tOgg1/gradebook/internal/models"
)

const maxSuggestions = 5

func shortID(id string) string {
	const limit = 8
	if len(id) <= limit {
		return id
	}
	return id[:limit]
}

func findClass(ctx context.Context, repo *db.MarkSetRepository, idOrName string) (*models.Class, error) {
	if strings.TrimSpace(idOrName) == "" {
		return nil, errors.New("class name or ID required")
	}

	classes, err := repo.ListClasses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	matches := matchByIDOrName(classes, idOrName,
		func(c *models.Class) string { return c.ID },
		func(c *models.Class) string { return c.Name },
	)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("class '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", idOrName, formatMatchList(len(matches), func(i int) string {
			return fmt.Sprintf("%s (%s)", matches[i].Name, shortID(matches[i].ID))
		}))
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class '%s' not found (no classes yet; run 'gradebook seed')", idOrName)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", classes[0].Name, shortID(classes[0].ID))
	return nil, fmt.Errorf("class '%s' not found. %s", idOrName, example)
}

func findMarkSet(ctx context.Context, repo *db.MarkSetRepository, classID, idOrName string) (*models.MarkSet, error) {
	if strings.TrimSpace(idOrName) == "" {
		return nil, errors.New("mark set name or ID required")
	}

	markSets, err := repo.ListMarkSets(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mark sets: %w", err)
	}

	matches := matchByIDOrName(markSets, idOrName,
		func(m *models.MarkSet) string { return m.ID },
		func(m *models.MarkSet) string { return m.Name },
	)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("mark set '%s' is ambiguous; matches: %s (use a longer prefix or full ID)", idOrName, formatMatchList(len(matches), func(i int) string {
			return fmt.Sprintf("%s (%s)", matches[i].Name, shortID(matches[i].ID))
		}))
	}
	if len(markSets) == 0 {
		return nil, fmt.Errorf("mark set '%s' not found (class has no mark sets)", idOrName)
	}

	example := fmt.Sprintf("Example input: '%s' or '%s'", markSets[0].Name, shortID(markSets[0].ID))
	return nil, fmt.Errorf("mark set '%s' not found. %s", idOrName, example)
}

// matchByIDOrName returns exact ID or name matches when there are any, and
// otherwise ID prefixes plus case-insensitive name prefixes. Names of three
// or more characters also match as substrings.
func matchByIDOrName[T any](items []T, query string, id, name func(T) string) []T {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return nil
	}

	var exact []T
	for _, item := range items {
		if id(item) == query || strings.ToLower(name(item)) == normalized {
			exact = append(exact, item)
		}
	}
	if len(exact) > 0 {
		return exact
	}

	matches := make([]T, 0)
	for _, item := range items {
		if strings.HasPrefix(id(item), query) {
			matches = append(matches, item)
			continue
		}
		lower := strings.ToLower(name(item))
		if strings.HasPrefix(lower, normalized) || (len(normalized) >= 3 && strings.Contains(lower, normalized)) {
			matches = append(matches, item)
		}
	}
	return matches
}

func formatMatchList(count int, format func(int) string) string {
	if count == 0 {
		return "none"
	}

	limit := count
	if limit > maxSuggestions {
		limit = maxSuggestions
	}

	parts := make([]string, 0, limit+1)
	for i := 0; i < limit; i++ {
		parts = append(parts, format(i))
	}
	if count > maxSuggestions {
		parts = append(parts, fmt.Sprintf("... and %d more", count-maxSuggestions))
	}

	return strings.Join(parts, ", ")
}
