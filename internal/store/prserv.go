package store

import (
	"strconv"
	"strings"
)

// prservWidth is the fixed width of the base-36 artifact identifier.
const prservWidth = 10

// PRSERV derives the stable artifact identifier from a document's
// primary key: upper-case base-36, zero-padded to a fixed width.
func PRSERV(documentID int64) string {
	s := strings.ToUpper(strconv.FormatInt(documentID, 36))
	if len(s) >= prservWidth {
		return s
	}
	return strings.Repeat("0", prservWidth-len(s)) + s
}
