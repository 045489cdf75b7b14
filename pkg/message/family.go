package message

import (
	"fmt"
	"strings"
)

// Family is an aircraft datalink protocol family. Routing is duplicated per
// family: two families never share a queue or a sink.
type Family int

// Supported protocol families.
const (
	ACARS Family = iota
	VDLM2
)

// Families returns every supported family in routing order.
func Families() []Family {
	return []Family{ACARS, VDLM2}
}

// String returns the upper-case family name used in logs.
func (f Family) String() string {
	switch f {
	case ACARS:
		return "ACARS"
	case VDLM2:
		return "VDLM2"
	default:
		return fmt.Sprintf("Family(%d)", int(f))
	}
}

// Topic returns the lower-case name used as the pub/sub topic.
func (f Family) Topic() string {
	return strings.ToLower(f.String())
}

// ParseFamily parses a family name, case-insensitively. "vdlm" is accepted
// as an alias for VDLM2.
func ParseFamily(s string) (Family, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACARS":
		return ACARS, nil
	case "VDLM2", "VDLM":
		return VDLM2, nil
	default:
		return 0, fmt.Errorf("unknown protocol family %q", s)
	}
}
