// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package index

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigrun-agent/internal/util"
)

// NoMatches is the answer text for a query with no hits.
const NoMatches = "no matching documents"

// snippetTokens is the FTS5 snippet window size.
const snippetTokens = 24

// Hit is one ranked query result.
type Hit struct {
	Path    string
	Snippet string
	Rank    float64
}

// Search returns up to topK documents matching any word of query, best first.
func (d *DocIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []Hit{}, nil
	}
	if topK <= 0 {
		topK = 3
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT path, snippet(documents, 1, '', '', '...', ?), bm25(documents) AS score
		FROM documents
		WHERE documents MATCH ?
		ORDER BY score
		LIMIT ?
	`, snippetTokens, match, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.Path, &h.Snippet, &h.Rank); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		h.Snippet = util.OneLine(h.Snippet)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// FormatHits renders hits as "<path>: <snippet>" paragraphs.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return NoMatches
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Path + ": " + h.Snippet
	}
	return strings.Join(parts, "\n\n")
}

// buildMatchQuery turns free text into an FTS5 expression that ORs every
// distinct word. Each word is quoted so FTS5 operators in the input are inert.
func buildMatchQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(norm.NFKC.String(query)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool, len(words))
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}
