package prospect

import (
	"regexp"
	"strings"
)

// Address holds the components parsed out of a formatted address string.
// Any field may be empty.
type Address struct {
	Street     string
	City       string
	StateCode  string
	PostalCode string
}

var (
	trailingCountryRe = regexp.MustCompile(`,?\s*(USA|United States|US)\s*$`)
	stateZipRe        = regexp.MustCompile(`^([A-Z]{2})\s*(\d{5}(?:-\d{4})?)?`)
)

// ParseFormattedAddress splits a search-API formatted address such as
// "123 Main St, Syracuse, NY 13202, USA" into components. This is a
// heuristic, not a full address parser: it tolerates a missing street
// ("Rochester, NY, USA") and a missing zip, and returns whatever it can.
func ParseFormattedAddress(formatted string) Address {
	var addr Address
	if formatted == "" {
		return addr
	}

	stripped := strings.TrimSpace(trailingCountryRe.ReplaceAllString(formatted, ""))

	var parts []string
	for _, p := range strings.Split(stripped, ",") {
		parts = append(parts, strings.TrimSpace(p))
	}

	var stateZip string
	switch {
	case len(parts) >= 3:
		// "street, city, STATE ZIP" or "street, city, STATE"
		addr.Street = parts[0]
		addr.City = parts[1]
		stateZip = parts[2]
	case len(parts) == 2:
		// "city, STATE ZIP"
		addr.City = parts[0]
		stateZip = parts[1]
	case len(parts) == 1:
		addr.City = parts[0]
		return addr
	default:
		return addr
	}

	if m := stateZipRe.FindStringSubmatch(stateZip); m != nil {
		addr.StateCode = m[1]
		addr.PostalCode = m[2]
	}

	return addr
}
