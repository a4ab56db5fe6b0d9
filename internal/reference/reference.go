// =============================================================================
// ASYCUDA Export - Reference Generator
// =============================================================================
//
// Formats the identifiers carried by a declaration:
//
//   - registration number : PREFIX + YYYYMMDD + 6-digit sequence
//   - commercial reference: PREFIX-YYYYMMDD
//   - previous document   : "{office} {year} C {c-number} art. {line}"
//
// The formatting functions are pure. Sequence numbers come from a Sequencer
// chosen by the caller (see sequencer.go).
//
// =============================================================================

package reference

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	// MaxRegistrationLength is the longest registration number ASYCUDA accepts.
	MaxRegistrationLength = 20

	// MaxSequence is the largest sequence that fits the 6-digit field.
	MaxSequence = 999999

	// DefaultCommercialPrefix is used when no commercial reference prefix is set.
	DefaultCommercialPrefix = "REF"

	dateStamp = "20060102"
)

// NextReference builds a registration number from prefix, runDate and
// sequence. Non-alphanumeric runes are dropped from the prefix and the rest
// is upper-cased.
//
// PARAMETERS:
//   - prefix: Office or exporter prefix (e.g. "lc-exp")
//   - runDate: The date the declaration is built for
//   - sequence: 1..999999, unique per prefix and day
//
// RETURNS:
//   - The registration number, e.g. "LCEXP20261017000042"
//   - An error if the sequence is out of range or the result is too long
func NextReference(prefix string, runDate time.Time, sequence int) (string, error) {
	if sequence < 1 || sequence > MaxSequence {
		return "", fmt.Errorf("sequence %d out of range 1..%d", sequence, MaxSequence)
	}

	ref := fmt.Sprintf("%s%s%06d", alnumUpper(prefix), runDate.Format(dateStamp), sequence)
	if len(ref) > MaxRegistrationLength {
		return "", fmt.Errorf("registration number %q exceeds %d characters; shorten the prefix", ref, MaxRegistrationLength)
	}
	return ref, nil
}

// CommercialReference returns "PREFIX-YYYYMMDD".
func CommercialReference(prefix string, runDate time.Time) string {
	p := alnumUpper(prefix)
	if p == "" {
		p = DefaultCommercialPrefix
	}
	return p + "-" + runDate.Format(dateStamp)
}

// PreviousDocument formats the reference to the import declaration the goods
// were entered under. The article suffix is omitted when line is zero.
func PreviousDocument(office string, year int, cNumber string, line int) string {
	ref := fmt.Sprintf("%s %d C %s", office, year, strings.TrimSpace(cNumber))
	if line > 0 {
		ref += fmt.Sprintf(" art. %d", line)
	}
	return ref
}

func alnumUpper(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
