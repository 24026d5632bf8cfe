package shorts

import (
	"maps"
	"slices"
	"strings"
)

var legalSuffixes = []string{" ab", " (publ)", " aktiebolag", " oyj", " asa", " a/s", " ltd", " plc"}

var shareClasses = []string{"-sdb", "sdb", "-a", "-b", " a", " b"}

// descriptors mark subsidiaries or divisions rather than the listed parent.
var descriptors = []string{"professional", "group", "holding", "international", "systems", "networks"}

// aliases maps fragments of portfolio names to the registered company names.
var aliases = map[string][]string{
	"handelsbanken": {"svenska handelsbanken"},
	"hm":            {"hennes mauritz", "h m", "hms networks"},
	"h m":           {"hennes mauritz", "hms networks"},
	"ericsson":      {"telefonaktiebolaget lm ericsson", "lm ericsson"},
	"atlas copco":   {"atlas copco aktiebolag"},
	"atlascopco":    {"atlas copco aktiebolag", "atlas copco"},
	"autoliv":       {"autoliv inc"},
	"assa abloy":    {"assa abloy"},
	"assaabloy":     {"assa abloy"},
	"skf":           {"aktiebolaget skf"},
	"sca":           {"svenska cellulosa aktiebolaget sca", "svenska cellulosa"},
	"seb":           {"skandinaviska enskilda banken"},
	"finnair":       {"finnair oyj"},
	"norwegian":     {"norwegian air shuttle"},
	"dfds":          {"dfds a/s"},
	"viscaria":      {"gruvaktiebolaget viscaria"},
	// volvo alone is the group, not the car maker
	"volvocar": {"volvo car"},
}

// Normalize lower-cases name and strips legal forms and extra spaces.
func Normalize(name string) string {
	n := strings.ToLower(name)
	for _, s := range legalSuffixes {
		n = strings.ReplaceAll(n, s, "")
	}
	return strings.Join(strings.Fields(n), " ")
}

// stripShareClass removes trailing share class markers such as "-b" or " sdb".
func stripShareClass(n string) string {
	for {
		trimmed := n
		for _, s := range shareClasses {
			trimmed = strings.TrimSuffix(trimmed, s)
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == n {
			return n
		}
		n = trimmed
	}
}

// Variations returns the name forms used for matching, sorted.
func Variations(name string) []string {
	v := make(map[string]struct{})
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			v[s] = struct{}{}
		}
	}
	norm := Normalize(name)
	add(norm)
	noHyphen := strings.ReplaceAll(norm, "-", " ")
	add(noHyphen)
	add(strings.ReplaceAll(norm, "-", ""))

	base := stripShareClass(norm)
	add(base)
	add(strings.ReplaceAll(base, "-", " "))
	add(strings.ReplaceAll(base, "-", ""))

	words := strings.Fields(norm)
	if len(words) > 0 {
		add(words[0])
	}
	if len(words) >= 2 && (words[0] == "aktiebolaget" || words[0] == "ab") {
		add(words[1])
		if len(words) > 2 {
			add(strings.Join(words[1:], " "))
		}
	}
	if strings.Contains(norm, "-") {
		add(strings.Join(strings.Fields(noHyphen), " "))
	}

	for key, names := range aliases {
		if strings.Contains(norm, key) || strings.Contains(noHyphen, key) || strings.Contains(base, key) {
			for _, n := range names {
				add(n)
				add(Normalize(n))
			}
		}
	}
	return slices.Sorted(maps.Keys(v))
}

type candidate struct {
	name   string
	ticker string
}

// MatchPortfolio matches the portfolio stocks (name to ticker) with the feed positions.
// Each ticker keeps its best scoring position.
func MatchPortfolio(positions []Position, portfolio map[string]string) map[string]Match {
	lookup := make(map[string][]candidate)
	for name, ticker := range portfolio {
		for _, v := range Variations(name) {
			if len(v) > 2 {
				lookup[v] = append(lookup[v], candidate{name, ticker})
			}
		}
	}

	matches := make(map[string]Match)
	for _, pos := range positions {
		company := Normalize(pos.CompanyName)
		companyWords := strings.Fields(company)
		for _, v := range Variations(pos.CompanyName) {
			for _, c := range lookup[v] {
				m := Match{
					CompanyName: pos.CompanyName,
					Percentage:  pos.Percentage,
					Date:        pos.Date,
					Holder:      pos.Holder,
					Market:      pos.Market,
				}
				m.Quality, m.Score = score(Normalize(c.name), company, companyWords, v)
				if best, ok := matches[c.ticker]; !ok || m.Score > best.Score {
					matches[c.ticker] = m
				}
			}
		}
	}
	return matches
}

func score(stock, company string, companyWords []string, variation string) (string, int) {
	var quality string
	var s int
	switch {
	case stock == company:
		quality, s = "exact", 100
	case variation == company:
		quality, s = "normalized", 90
	case len(variation) > 10:
		quality, s = "long_variation", 85
	default:
		quality, s = "variation", 80
	}

	// "Aktiebolaget X" is the listed parent of stock "X-B"
	if len(companyWords) == 2 && companyWords[0] == "aktiebolaget" {
		base := stripShareClass(stock)
		if companyWords[1] == base || strings.Contains(base, companyWords[1]) {
			s += 15
		}
	}
	for _, d := range descriptors {
		if strings.Contains(company, d) {
			s -= 10
			break
		}
	}
	switch len(companyWords) {
	case 1:
		s += 5
	case 2:
		s += 3
	}
	if strings.HasPrefix(company, variation) || strings.HasSuffix(company, variation) {
		s += 2
	}
	return quality, s
}
