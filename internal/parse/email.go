package parse

import (
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// pattern is the structural filter applied to every candidate address:
// one or more local-part characters, "@", domain labels containing at
// least one dot, and a top-level label of at least two letters.
var pattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Address is the internal representation of a candidate email address.
// The check/ packages receive this as parameter.
type Address struct {
	Raw        string // the original, trimmed input
	Local      string // the part before the first @
	Domain     string // the part after the first @, lowercased ASCII form
	Normalized string // Local + "@" + Domain
	Valid      bool   // false if Raw fails the structural pattern
}

// NewAddress parses the given candidate string. No network or disk
// access; a deterministic, pure function. If the input fails the
// structural pattern, Valid=false but Raw is always populated.
func NewAddress(raw string) Address {
	raw = strings.TrimSpace(raw)

	if !pattern.MatchString(raw) {
		return Address{Raw: raw, Valid: false}
	}

	at := strings.Index(raw, "@")
	local := raw[:at]
	domain := strings.ToLower(raw[at+1:])

	// The pattern only admits ASCII domains, but Punycode labels
	// (xn--) still need IDNA2008 validation before they are handed
	// to DNS or SMTP.
	ascii, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return Address{Raw: raw, Valid: false}
	}

	return Address{
		Raw:        raw,
		Local:      local,
		Domain:     ascii,
		Normalized: local + "@" + ascii,
		Valid:      true,
	}
}
