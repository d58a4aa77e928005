package store

import (
	"context"
	"fmt"
	"strings"
)

// Slugify lowercases a name and squeezes everything but letters and digits
// into single hyphens.
func Slugify(name string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "space"
	}
	return slug
}

// AvailableSlug finds the first free slug for the name: the plain slug, then
// -2, -3 and so on. excludeID exempts a space's own row so renames keep
// their slug. The unique index on spaces.slug is the real guard; a
// concurrent claim surfaces as Conflict on write.
func (s *Store) AvailableSlug(ctx context.Context, name, excludeID string) (string, error) {
	base := Slugify(name)
	query := `SELECT EXISTS (SELECT 1 FROM spaces WHERE slug = $1 AND id <> $2)`

	slug := base
	for i := 2; ; i++ {
		var taken bool
		if err := s.conn(ctx).QueryRow(ctx, query, slug, excludeID).Scan(&taken); err != nil {
			return "", translateError("check slug", err)
		}
		if !taken {
			return slug, nil
		}
		slug = fmt.Sprintf("%s-%d", base, i)
	}
}
