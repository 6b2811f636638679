// -----------------------------------------------------------------------
// Locator - strategy+value description used to find remote UI objects
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"strings"
)

// LocatorStrategy names how a locator value is interpreted by a driver
type LocatorStrategy string

const (
	StrategyID          LocatorStrategy = "id"
	StrategyCSS         LocatorStrategy = "css"
	StrategyXPath       LocatorStrategy = "xpath"
	StrategyName        LocatorStrategy = "name"
	StrategyClassName   LocatorStrategy = "class"
	StrategyTagName     LocatorStrategy = "tag"
	StrategyLinkText    LocatorStrategy = "link"
	StrategyPartialLink LocatorStrategy = "partial_link"
)

var knownStrategies = map[LocatorStrategy]bool{
	StrategyID:          true,
	StrategyCSS:         true,
	StrategyXPath:       true,
	StrategyName:        true,
	StrategyClassName:   true,
	StrategyTagName:     true,
	StrategyLinkText:    true,
	StrategyPartialLink: true,
}

// Locator is an immutable strategy+value pair. The zero value is invalid.
type Locator struct {
	Strategy LocatorStrategy `json:"strategy" yaml:"strategy" toml:"strategy"`
	Value    string          `json:"value" yaml:"value" toml:"value"`
}

func ByID(id string) Locator             { return Locator{Strategy: StrategyID, Value: id} }
func ByCSS(selector string) Locator      { return Locator{Strategy: StrategyCSS, Value: selector} }
func ByXPath(expr string) Locator        { return Locator{Strategy: StrategyXPath, Value: expr} }
func ByName(name string) Locator         { return Locator{Strategy: StrategyName, Value: name} }
func ByClassName(class string) Locator   { return Locator{Strategy: StrategyClassName, Value: class} }
func ByTagName(tag string) Locator       { return Locator{Strategy: StrategyTagName, Value: tag} }
func ByLinkText(text string) Locator     { return Locator{Strategy: StrategyLinkText, Value: text} }
func ByPartialLinkText(s string) Locator { return Locator{Strategy: StrategyPartialLink, Value: s} }

// ParseLocator parses the "strategy:value" form used in locator catalogs.
// A value without a known strategy prefix is treated as a css selector.
func ParseLocator(s string) (Locator, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Locator{}, fmt.Errorf("%w: empty locator", ErrInvalidLocator)
	}

	if idx := strings.Index(s, ":"); idx > 0 {
		strategy := LocatorStrategy(strings.ToLower(strings.TrimSpace(s[:idx])))
		if knownStrategies[strategy] {
			loc := Locator{Strategy: strategy, Value: strings.TrimSpace(s[idx+1:])}
			return loc, loc.Validate()
		}
	}

	return ByCSS(s), nil
}

// Validate reports ErrInvalidLocator for unknown strategies or empty values
func (l Locator) Validate() error {
	if !knownStrategies[l.Strategy] {
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidLocator, l.Strategy)
	}
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("%w: empty value for strategy %q", ErrInvalidLocator, l.Strategy)
	}
	return nil
}

// IsZero reports whether the locator was never set
func (l Locator) IsZero() bool {
	return l.Strategy == "" && l.Value == ""
}

func (l Locator) String() string {
	return string(l.Strategy) + ":" + l.Value
}

// UnmarshalText lets catalogs and config files carry locators in their text form
func (l *Locator) UnmarshalText(text []byte) error {
	loc, err := ParseLocator(string(text))
	if err != nil {
		return err
	}
	*l = loc
	return nil
}

// MarshalText renders the "strategy:value" form
func (l Locator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}
