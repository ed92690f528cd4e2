package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Numbering domain suffixes.
const (
	SuffixLab        = "L"
	SuffixQuarantine = "Q"
)

// MaxSequence is the largest counter a 4-digit prefix can hold.
const MaxSequence = 9999

var numberPattern = regexp.MustCompile(`^(\d{4})-(\d{4})-([A-Z])$`)

// ProcedureNumber is a parsed NNNN-YYYY-S identifier.
type ProcedureNumber struct {
	Seq    int
	Year   int
	Suffix string
}

// String formats the number with a zero-padded 4-digit counter.
func (n ProcedureNumber) String() string {
	return fmt.Sprintf("%04d-%04d-%s", n.Seq, n.Year, n.Suffix)
}

// ParseProcedureNumber parses s. Returns ErrInvalidNumber when s does not
// match NNNN-YYYY-S or the counter is zero.
func ParseProcedureNumber(s string) (ProcedureNumber, error) {
	m := numberPattern.FindStringSubmatch(s)
	if m == nil {
		return ProcedureNumber{}, fmt.Errorf("%q: %w", s, ErrInvalidNumber)
	}
	seq, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if seq == 0 {
		return ProcedureNumber{}, fmt.Errorf("%q: zero counter: %w", s, ErrInvalidNumber)
	}
	return ProcedureNumber{Seq: seq, Year: year, Suffix: m[3]}, nil
}

// ValidSuffix reports whether suffix names a numbering domain.
func ValidSuffix(suffix string) bool {
	return suffix == SuffixLab || suffix == SuffixQuarantine
}

// IsQuarantineNumber reports whether an external number originates from the
// quarantine domain.
func IsQuarantineNumber(s string) bool {
	return strings.HasSuffix(s, "-"+SuffixQuarantine)
}
