package selector

import (
	"context"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/OneChainTech/dynamic-cheatsheet/internal/memory"
)

// LexicalScorer rates entries by token overlap with the query: the cosine
// of the two binary token vectors. Tokens are NFKC-normalized and
// case-folded, so "Itertools" matches "itertools" and full-width digits
// match their ASCII forms. It needs no model calls and is the default.
type LexicalScorer struct {
	folder cases.Caser
}

func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{folder: cases.Fold()}
}

func (s *LexicalScorer) Name() string { return "lexical" }

func (s *LexicalScorer) Score(ctx context.Context, query string, entries []memory.Entry) ([]float64, error) {
	queryTokens := s.tokenize(query)
	scores := make([]float64, len(entries))
	if len(queryTokens) == 0 {
		return scores, nil
	}

	for i, entry := range entries {
		entryTokens := s.tokenize(entry.Content)
		if len(entryTokens) == 0 {
			continue
		}
		matched := 0
		for token := range entryTokens {
			if _, ok := queryTokens[token]; ok {
				matched++
			}
		}
		scores[i] = float64(matched) / math.Sqrt(float64(len(queryTokens))*float64(len(entryTokens)))
	}
	return scores, nil
}

func (s *LexicalScorer) tokenize(text string) map[string]struct{} {
	folded := s.folder.String(norm.NFKC.String(text))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		tokens[f] = struct{}{}
	}
	return tokens
}
