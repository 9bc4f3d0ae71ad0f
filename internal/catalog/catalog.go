// Package catalog holds the fixed set of read-only queries a load test samples from.
package catalog

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Query is a named SQL statement.
type Query struct {
	Name string
	Text string
}

// Catalog is immutable after construction and safe for concurrent reads.
type Catalog struct {
	names   []string
	queries map[string]string

	templated map[string]bool
	expand    *expander
}

// New copies queries into a catalog. Names and texts must be non-empty, and
// templated texts must render.
func New(queries map[string]string) (*Catalog, error) {
	if len(queries) == 0 {
		return nil, errors.New("catalog: no queries")
	}

	c := &Catalog{
		names:     make([]string, 0, len(queries)),
		queries:   make(map[string]string, len(queries)),
		templated: make(map[string]bool),
		expand:    newExpander(),
	}
	probe := rand.New(rand.NewPCG(0, 0))
	for name, text := range queries {
		name = strings.TrimSpace(name)
		text = strings.TrimSpace(text)
		if name == "" {
			return nil, errors.New("catalog: empty query name")
		}
		if text == "" {
			return nil, fmt.Errorf("catalog: query %q has no text", name)
		}
		if isTemplate(text) {
			if _, err := c.expand.render(name, text, probe); err != nil {
				return nil, fmt.Errorf("catalog: query %q: %w", name, err)
			}
			c.templated[name] = true
		}
		c.names = append(c.names, name)
		c.queries[name] = text
	}
	sort.Strings(c.names)

	return c, nil
}

// Load reads a YAML file of the form:
//
//	queries:
//	  top_brands: SELECT ...
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var doc struct {
		Queries map[string]string `yaml:"queries"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	return New(doc.Queries)
}

// Names returns the query names in sorted order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int {
	return len(c.names)
}

// Text returns the SQL for name, unexpanded.
func (c *Catalog) Text(name string) (string, bool) {
	text, ok := c.queries[name]
	return text, ok
}

// Sample picks one query uniformly at random, with replacement, and expands
// its template actions with rng. A text that fails to expand is returned as
// is, and the server reports it as a query failure.
func (c *Catalog) Sample(rng *rand.Rand) Query {
	name := c.names[rng.IntN(len(c.names))]
	text := c.queries[name]
	if c.templated[name] {
		if out, err := c.expand.render(name, text, rng); err == nil {
			text = out
		}
	}
	return Query{Name: name, Text: text}
}

// Queries returns every query in name order.
func (c *Catalog) Queries() []Query {
	out := make([]Query, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, Query{Name: name, Text: c.queries[name]})
	}
	return out
}
