package ingest

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/openelectorate/newspulse/internal/store"
)

// Linker attaches candidate mentions to swept articles by matching known
// full names against the article text.
type Linker struct {
	store store.Store
}

// NewLinker creates an entity linker.
func NewLinker(s store.Store) *Linker {
	return &Linker{store: s}
}

// LinkCandidates scans the article's combined text for every known
// candidate's full name as a whole-word, case-insensitive substring.
// Longest names are checked first so "Joan Smithson" is not claimed by a
// candidate named "Joan Smith". Returns the number of mentions created.
func (l *Linker) LinkCandidates(ctx context.Context, article *store.Article) (int, error) {
	candidates, err := l.store.ListCandidates(ctx)
	if err != nil {
		return 0, err
	}

	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].FullName) > len(candidates[j].FullName)
	})

	text := strings.ToLower(article.Title + " " + article.Summary)
	claimed := make([]bool, len(text))

	linked := 0
	for i := range candidates {
		name := strings.ToLower(strings.TrimSpace(candidates[i].FullName))
		if name == "" {
			continue
		}
		pos, ok := findWholeWord(text, name, claimed)
		if !ok {
			continue
		}
		for j := pos; j < pos+len(name); j++ {
			claimed[j] = true
		}
		if err := l.store.UpsertMention(ctx, &store.EntityMention{
			ArticleID:  article.ID,
			EntityType: store.EntityCandidate,
			EntityID:   candidates[i].ID,
		}); err != nil {
			return linked, err
		}
		linked++
	}
	return linked, nil
}

// findWholeWord locates needle in haystack on word boundaries, skipping
// regions already claimed by a longer name.
func findWholeWord(haystack, needle string, claimed []bool) (int, bool) {
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return 0, false
		}
		pos := from + idx
		end := pos + len(needle)

		boundedLeft := pos == 0 || !isWordChar(rune(haystack[pos-1]))
		boundedRight := end == len(haystack) || !isWordChar(rune(haystack[end]))
		overlaps := false
		for j := pos; j < end; j++ {
			if claimed[j] {
				overlaps = true
				break
			}
		}

		if boundedLeft && boundedRight && !overlaps {
			return pos, true
		}
		from = pos + 1
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
