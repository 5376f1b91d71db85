// Package countries maps the country headers found in mirror-list
// documents to ISO 3166-1 alpha-2 tags.
package countries

import "strings"

// Country identifies the country a mirror is hosted in.
// The zero value is Unknown, which is a valid state: mirror lists are
// not required to group their entries under country headers.
type Country struct {
	Code string // ISO 3166-1 alpha-2, upper case
	Name string
}

// Unknown is returned when a header cannot be matched.
var Unknown = Country{}

// IsKnown reports whether c carries a real country tag.
func (c Country) IsKnown() bool {
	return c.Code != ""
}

func (c Country) String() string {
	if !c.IsKnown() {
		return "Unknown"
	}
	return c.Name
}

var all = []Country{
	{"AR", "Argentina"},
	{"AU", "Australia"},
	{"AT", "Austria"},
	{"BD", "Bangladesh"},
	{"BY", "Belarus"},
	{"BE", "Belgium"},
	{"BA", "Bosnia and Herzegovina"},
	{"BR", "Brazil"},
	{"BG", "Bulgaria"},
	{"CA", "Canada"},
	{"CL", "Chile"},
	{"CN", "China"},
	{"CO", "Colombia"},
	{"HR", "Croatia"},
	{"CZ", "Czechia"},
	{"DK", "Denmark"},
	{"EC", "Ecuador"},
	{"EE", "Estonia"},
	{"FI", "Finland"},
	{"FR", "France"},
	{"GE", "Georgia"},
	{"DE", "Germany"},
	{"GR", "Greece"},
	{"HK", "Hong Kong"},
	{"HU", "Hungary"},
	{"IS", "Iceland"},
	{"IN", "India"},
	{"ID", "Indonesia"},
	{"IR", "Iran"},
	{"IE", "Ireland"},
	{"IL", "Israel"},
	{"IT", "Italy"},
	{"JP", "Japan"},
	{"KZ", "Kazakhstan"},
	{"KE", "Kenya"},
	{"LV", "Latvia"},
	{"LT", "Lithuania"},
	{"LU", "Luxembourg"},
	{"MX", "Mexico"},
	{"MD", "Moldova"},
	{"NL", "Netherlands"},
	{"NC", "New Caledonia"},
	{"NZ", "New Zealand"},
	{"MK", "North Macedonia"},
	{"NO", "Norway"},
	{"PK", "Pakistan"},
	{"PY", "Paraguay"},
	{"PH", "Philippines"},
	{"PL", "Poland"},
	{"PT", "Portugal"},
	{"RO", "Romania"},
	{"RU", "Russia"},
	{"RS", "Serbia"},
	{"SG", "Singapore"},
	{"SK", "Slovakia"},
	{"SI", "Slovenia"},
	{"ZA", "South Africa"},
	{"KR", "South Korea"},
	{"ES", "Spain"},
	{"SE", "Sweden"},
	{"CH", "Switzerland"},
	{"TW", "Taiwan"},
	{"TH", "Thailand"},
	{"TR", "Turkey"},
	{"UA", "Ukraine"},
	{"GB", "United Kingdom"},
	{"US", "United States"},
	{"VN", "Vietnam"},
}

// aliases covers spellings seen in real mirror lists that differ from
// the canonical names above.
var aliases = map[string]string{
	"czech republic":           "CZ",
	"macedonia":                "MK",
	"korea":                    "KR",
	"uk":                       "GB",
	"usa":                      "US",
	"united states of america": "US",
	"russian federation":       "RU",
}

var byKey map[string]Country

func init() {
	byKey = make(map[string]Country, len(all)*2+len(aliases))
	for _, c := range all {
		byKey[strings.ToLower(c.Code)] = c
		byKey[strings.ToLower(c.Name)] = c
	}
	for alias, code := range aliases {
		byKey[alias] = byKey[strings.ToLower(code)]
	}
}

// FromString matches s against country names and alpha-2 codes,
// case-insensitively. Unmatched input yields Unknown; it is never an
// error because mirror lists routinely carry headers like "Worldwide".
func FromString(s string) Country {
	c, ok := byKey[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return Unknown
	}
	return c
}
