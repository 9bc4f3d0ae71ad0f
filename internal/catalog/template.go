package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"text/template"

	"github.com/google/uuid"
)

func isTemplate(text string) bool {
	return strings.Contains(text, "{{")
}

// Query texts may carry template actions that are expanded every time the
// query is sampled, so repeated executions do not hit a result cache:
//
//	SELECT count() FROM offers WHERE category_id = {{randomInt 1 500}}
//	SELECT * FROM brands WHERE name = '{{randomChoice "acme" "globex"}}'
//	SELECT * FROM users WHERE id = '{{randomLine "ids.txt"}}'
//	SELECT '{{uuid}}' AS tag
//
// expander renders those texts and caches the files read by randomLine.
type expander struct {
	mu    sync.RWMutex
	files map[string][]string
}

func newExpander() *expander {
	return &expander{files: make(map[string][]string)}
}

func (e *expander) funcs(rng *rand.Rand) template.FuncMap {
	return template.FuncMap{
		"randomInt": func(lo, hi int) (int, error) {
			if hi <= lo {
				return 0, fmt.Errorf("randomInt: empty range [%d, %d)", lo, hi)
			}
			return lo + rng.IntN(hi-lo), nil
		},
		"randomChoice": func(choices ...string) string {
			if len(choices) == 0 {
				return ""
			}
			return choices[rng.IntN(len(choices))]
		},
		"randomLine": func(filename string) (string, error) {
			lines, err := e.lines(filename)
			if err != nil || len(lines) == 0 {
				return "", err
			}
			return lines[rng.IntN(len(lines))], nil
		},
		"uuid": uuid.NewString,
	}
}

// render expands text with rng as the source of randomness.
func (e *expander) render(name, text string, rng *rand.Rand) (string, error) {
	t, err := template.New(name).Funcs(e.funcs(rng)).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, nil); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (e *expander) lines(filename string) ([]string, error) {
	e.mu.RLock()
	lines, ok := e.files[filename]
	e.mu.RUnlock()
	if ok {
		return lines, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if lines, ok = e.files[filename]; ok {
		return lines, nil
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("randomLine: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	e.files[filename] = lines
	return lines, nil
}
