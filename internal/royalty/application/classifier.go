package application

import (
	"strings"

	royalty "royalty-engine/internal/royalty/domain"
)

// StationClassifier maps a station to its licensing tier. Implementations
// must be pure functions of the station attributes.
type StationClassifier interface {
	Classify(station royalty.Station) royalty.StationClass
}

// ClassifierFunc adapts a function to StationClassifier.
type ClassifierFunc func(station royalty.Station) royalty.StationClass

// Classify implements StationClassifier.
func (f ClassifierFunc) Classify(station royalty.Station) royalty.StationClass { return f(station) }

type keywordRule struct {
	class    royalty.StationClass
	keywords []string
}

var defaultKeywordRules = []keywordRule{
	{class: royalty.StationClassOnline, keywords: []string{"online", "internet", "web", "stream", "digital"}},
	{class: royalty.StationClassCommunity, keywords: []string{"community", "campus", "college", "university"}},
	{class: royalty.StationClassA, keywords: []string{"national", "metro", "network"}},
	{class: royalty.StationClassC, keywords: []string{"rural", "local", "district"}},
}

// KeywordClassifier assigns a class from keywords in the station name and
// location; the first matching rule wins and ClassB is the fallback.
type KeywordClassifier struct {
	rules    []keywordRule
	fallback royalty.StationClass
}

// NewKeywordClassifier constructs the default keyword heuristic.
func NewKeywordClassifier() KeywordClassifier {
	return KeywordClassifier{rules: defaultKeywordRules, fallback: royalty.StationClassB}
}

// Classify implements StationClassifier.
func (c KeywordClassifier) Classify(station royalty.Station) royalty.StationClass {
	haystack := strings.ToLower(station.Name + " " + station.Location)
	rules := c.rules
	if rules == nil {
		rules = defaultKeywordRules
	}
	for _, rule := range rules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.class
			}
		}
	}
	if c.fallback == "" {
		return royalty.StationClassB
	}
	return c.fallback
}

// StoredClassClassifier prefers the station's stored class and defers to
// Fallback when it is missing or unknown.
type StoredClassClassifier struct {
	Fallback StationClassifier
}

// Classify implements StationClassifier.
func (c StoredClassClassifier) Classify(station royalty.Station) royalty.StationClass {
	if station.Class.Valid() {
		return station.Class
	}
	if c.Fallback != nil {
		return c.Fallback.Classify(station)
	}
	return NewKeywordClassifier().Classify(station)
}
