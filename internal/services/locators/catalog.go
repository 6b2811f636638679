// Package locators loads named page locators from TOML or YAML files so page
// objects can refer to "login.username" instead of hard-coding selectors.
//
// Each file maps a page name to a table of name = "strategy:value" entries:
//
//	[login]
//	username = "id:username"
//	submit   = "css:button[type=submit]"
package locators

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/pagekit/internal/models"
)

// ErrLocatorNotFound is returned when a page or entry is missing from the catalog
var ErrLocatorNotFound = errors.New("locator not found")

// Catalog holds locators by page then name
type Catalog struct {
	pages map[string]map[string]models.Locator
}

func New() *Catalog {
	return &Catalog{pages: make(map[string]map[string]models.Locator)}
}

// Load reads every file in order; entries in later files override earlier ones
func Load(paths ...string) (*Catalog, error) {
	c := New()
	for _, p := range paths {
		if err := c.LoadFile(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// LoadFile merges one file into the catalog, choosing the decoder by extension
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read locator file %s: %w", path, err)
	}
	parsed, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to parse locator file %s: %w", path, err)
	}
	c.Merge(parsed)
	return nil
}

// Parse decodes catalog data. format is a file extension: .toml, .yaml or .yml.
func Parse(data []byte, format string) (*Catalog, error) {
	raw := map[string]map[string]string{}
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported locator file format %q", format)
	}

	c := New()
	for page, entries := range raw {
		for name, text := range entries {
			loc, err := models.ParseLocator(text)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", page, name, err)
			}
			c.Set(page, name, loc)
		}
	}
	return c, nil
}

// Set adds or replaces one entry
func (c *Catalog) Set(page, name string, loc models.Locator) {
	entries, ok := c.pages[page]
	if !ok {
		entries = make(map[string]models.Locator)
		c.pages[page] = entries
	}
	entries[name] = loc
}

// Merge copies other into c, overriding entries that exist in both
func (c *Catalog) Merge(other *Catalog) {
	for page, entries := range other.pages {
		for name, loc := range entries {
			c.Set(page, name, loc)
		}
	}
}

func (c *Catalog) Get(page, name string) (models.Locator, error) {
	loc, ok := c.pages[page][name]
	if !ok {
		return models.Locator{}, fmt.Errorf("%w: %s.%s", ErrLocatorNotFound, page, name)
	}
	return loc, nil
}

// MustGet is Get for page-object initialisation, where a missing entry is a programming error
func (c *Catalog) MustGet(page, name string) models.Locator {
	loc, err := c.Get(page, name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Lookup resolves a dotted "page.name" key
func (c *Catalog) Lookup(key string) (models.Locator, error) {
	page, name, ok := strings.Cut(key, ".")
	if !ok {
		return models.Locator{}, fmt.Errorf("%w: key %q is not page.name", ErrLocatorNotFound, key)
	}
	return c.Get(page, name)
}

// Page returns a copy of one page's entries
func (c *Catalog) Page(page string) map[string]models.Locator {
	out := make(map[string]models.Locator, len(c.pages[page]))
	for k, v := range c.pages[page] {
		out[k] = v
	}
	return out
}

// Pages lists page names, sorted
func (c *Catalog) Pages() []string {
	out := make([]string, 0, len(c.pages))
	for p := range c.pages {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
