// Package revtree implements document revision trees: a forest
// of revision lineages stored as an arena of nodes with parent
// indices. It supports merging incoming lineages, stemming to a
// maximum depth and picking the winning revision.
package revtree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidRev indicates a revision id that is not of
// the form "<generation>-<hash>"
var ErrInvalidRev = errors.New("invalid revision id")

// Rev formats a revision id
func Rev(pos int, hash string) string {
	return strconv.Itoa(pos) + "-" + hash
}

// ParseRev splits a revision id into its generation and hash.
// The generation must be a positive integer and the hash
// must not be empty.
func ParseRev(rev string) (int, string, error) {
	i := strings.IndexByte(rev, '-')

	if i <= 0 || i == len(rev)-1 {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidRev, rev)
	}

	pos, err := strconv.Atoi(rev[:i])

	if err != nil || pos <= 0 {
		return 0, "", fmt.Errorf("%w: %q", ErrInvalidRev, rev)
	}

	return pos, rev[i+1:], nil
}
