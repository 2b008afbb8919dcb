package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/malbeclabs/mindlake/pkg/store"
)

var (
	// ErrUnsafeQuery is returned for any query that is not a SELECT.
	ErrUnsafeQuery = errors.New("only SELECT statements are allowed")
	// ErrNoQueryFound is reported when synthesis produced no extractable query.
	ErrNoQueryFound = errors.New("no query found")
)

// GuardQuery accepts a query only if its leading keyword is SELECT, ignoring
// case, and it holds a single statement.
func GuardQuery(query string) error {
	trimmed := strings.TrimLeftFunc(query, unicode.IsSpace)
	end := strings.IndexFunc(trimmed, func(r rune) bool { return !unicode.IsLetter(r) })
	if end == -1 {
		end = len(trimmed)
	}
	if !strings.EqualFold(trimmed[:end], "SELECT") {
		return ErrUnsafeQuery
	}
	if err := store.CheckSingleStatement(query); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsafeQuery, err)
	}
	return nil
}
