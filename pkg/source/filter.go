package source

import "strings"

// KeywordFilter keeps records whose text mentions any include keyword and none of
// the exclude keywords. Matching is case-insensitive substring matching; an empty
// include list accepts everything not excluded.
type KeywordFilter struct {
	include []string
	exclude []string
}

// NewKeywordFilter lowercases and trims both keyword lists, dropping blanks.
func NewKeywordFilter(include, exclude []string) *KeywordFilter {
	return &KeywordFilter{include: lowerAll(include), exclude: lowerAll(exclude)}
}

// Matches reports whether text passes the filter.
func (f *KeywordFilter) Matches(text string) bool {
	if f == nil {
		return true
	}
	lower := strings.ToLower(text)

	for _, ex := range f.exclude {
		if strings.Contains(lower, ex) {
			return false
		}
	}

	if len(f.include) == 0 {
		return true
	}
	for _, kw := range f.include {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// MatchesRecord checks the record's text and title.
func (f *KeywordFilter) MatchesRecord(r Record) bool {
	if r.Title != "" && !strings.Contains(r.Text, r.Title) {
		return f.Matches(r.Title + " " + r.Text)
	}
	return f.Matches(r.Text)
}

// Empty reports whether the filter has no keywords at all.
func (f *KeywordFilter) Empty() bool {
	return f == nil || (len(f.include) == 0 && len(f.exclude) == 0)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}
