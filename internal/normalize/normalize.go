// Package normalize canonicalizes free-text agency, agent, suburb, and street
// identifiers into stable aggregation keys. Normalization never fails:
// unmappable input degrades to Unknown so totals stay conservative.
package normalize

import (
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Unknown is the bucket for identifiers that cannot be canonicalized.
const Unknown = "Unknown"

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	postcodeRe   = regexp.MustCompile(`^\(?\d{4}\)?$`)
)

// stateTokens are Australian state/territory suffixes stripped from suburb
// input before table lookup.
var stateTokens = map[string]bool{
	"qld": true, "nsw": true, "vic": true, "sa": true,
	"wa": true, "tas": true, "nt": true, "act": true,
}

// Agency canonicalizes an agency name. Same rule as Agent; both exist so
// call sites say which dimension they key on.
func Agency(raw string) string { return name(raw) }

// Agent canonicalizes an agent name.
func Agent(raw string) string { return name(raw) }

// name: trimmed, first rune title-cased, remainder lower-cased. Empty input
// maps to Unknown.
func name(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return Unknown
	}
	name = multiSpaceRe.ReplaceAllString(name, " ")
	lower := strings.ToLower(name)
	r := []rune(lower)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// Street canonicalizes a street name into a matching key: trimmed,
// lower-cased, internal whitespace collapsed. Unlike suburbs there is no
// lookup table; two entries match only if they normalize identically.
func Street(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(s)
}

// StreetKey namespaces a street key by its canonical suburb so identical
// street names in different suburbs never collide in cross-plan rollups.
func StreetKey(suburb, street string) string {
	return suburb + ": " + Street(street)
}

// SuburbTable maps lower-cased suburb names to their canonical labels
// (e.g. "pullenvale" -> "PULLENVALE 4069").
type SuburbTable map[string]string

// DefaultSuburbs covers the agency's current operating area. Override with a
// YAML file via LoadSuburbs when coverage changes.
func DefaultSuburbs() SuburbTable {
	return SuburbTable{
		"anstead":              "ANSTEAD 4070",
		"bellbowrie":           "BELLBOWRIE 4070",
		"brookfield":           "BROOKFIELD 4069",
		"chapel hill":          "CHAPEL HILL 4069",
		"fig tree pocket":      "FIG TREE POCKET 4069",
		"indooroopilly":        "INDOOROOPILLY 4068",
		"jamboree heights":     "JAMBOREE HEIGHTS 4074",
		"jindalee":             "JINDALEE 4074",
		"karana downs":         "KARANA DOWNS 4306",
		"kenmore":              "KENMORE 4069",
		"kenmore hills":        "KENMORE HILLS 4069",
		"kholo":                "KHOLO 4306",
		"middle park":          "MIDDLE PARK 4074",
		"moggill":              "MOGGILL 4070",
		"mount crosby":         "MOUNT CROSBY 4306",
		"oxley":                "OXLEY 4075",
		"pinjarra hills":       "PINJARRA HILLS 4069",
		"pullenvale":           "PULLENVALE 4069",
		"riverhills":           "RIVERHILLS 4074",
		"seventeen mile rocks": "SEVENTEEN MILE ROCKS 4073",
		"sinnamon park":        "SINNAMON PARK 4073",
		"st lucia":             "ST LUCIA 4067",
		"taringa":              "TARINGA 4068",
		"toowong":              "TOOWONG 4066",
		"westlake":             "WESTLAKE 4074",
	}
}

// LoadSuburbs reads a suburb table from a YAML file of name: label pairs.
// Keys are lower-cased on load.
func LoadSuburbs(path string) (SuburbTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "normalize: read suburb table")
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrap(err, "normalize: parse suburb table")
	}
	table := make(SuburbTable, len(raw))
	for k, v := range raw {
		table[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return table, nil
}

// Suburb canonicalizes a free-text suburb against the table: trim,
// lower-case, drop trailing state and postcode tokens, then look up. Entries
// like "Pullenvale", "Pullenvale QLD 4069", and "pullenvale qld (4069)" all
// collapse to the same label; a miss maps to Unknown.
func (t SuburbTable) Suburb(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return Unknown
	}
	s = multiSpaceRe.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	for len(words) > 1 {
		last := words[len(words)-1]
		if stateTokens[last] || postcodeRe.MatchString(last) {
			words = words[:len(words)-1]
			continue
		}
		break
	}
	name := strings.Join(words, " ")

	if label, ok := t[name]; ok {
		return label
	}
	return Unknown
}
