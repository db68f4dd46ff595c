// Package catalog holds the static table of selectable models.
//
// A Catalog maps short model keys chosen by users ("gpt4", "deepseek") to the
// vendor identifiers sent upstream. It is built once at startup and never
// mutated afterwards, so it is safe to share between requests.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pentestai/pentestai/pkg/llm"
)

// DefaultKey is the model used when a request names none or an unknown one.
const DefaultKey = "gpt4"

// Choice is a single selectable model.
type Choice struct {
	Key         string `toml:"key"`
	ExternalID  string `toml:"id"`
	DisplayName string `toml:"name"`
}

// Info returns the attribution block sent back to clients.
func (c Choice) Info() llm.ModelInfo {
	return llm.ModelInfo{
		Requested:   c.Key,
		Actual:      c.ExternalID,
		DisplayName: c.DisplayName,
	}
}

var builtin = []Choice{
	{Key: "gpt4", ExternalID: "gpt-4o", DisplayName: "GPT-4"},
	{Key: "deepseek", ExternalID: "DeepSeek-R1", DisplayName: "DeepSeek"},
	{Key: "llama-3.3", ExternalID: "Llama-3.3-70B-Instruct", DisplayName: "Llama 3.3 (70B)"},
	{Key: "phi4", ExternalID: "Phi-4", DisplayName: "Phi-4"},
	{Key: "llama-3.1", ExternalID: "Meta-Llama-3.1-405B-Instruct", DisplayName: "Llama 3.1 (405B)"},
}

// Catalog is an immutable, ordered model table.
type Catalog struct {
	choices    []Choice
	byKey      map[string]int
	defaultKey string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(builtin, DefaultKey)
	if err != nil {
		panic("invalid built-in catalog: " + err.Error())
	}
	return c
}

// New builds a catalog from choices. The choices slice is copied. defaultKey
// may be empty, in which case the first choice is the default.
func New(choices []Choice, defaultKey string) (*Catalog, error) {
	if len(choices) == 0 {
		return nil, errors.New("catalog needs at least one model")
	}

	c := &Catalog{
		choices: make([]Choice, 0, len(choices)),
		byKey:   make(map[string]int, len(choices)),
	}
	for _, ch := range choices {
		ch.Key = strings.TrimSpace(ch.Key)
		if ch.Key == "" || ch.ExternalID == "" {
			return nil, fmt.Errorf("model %q: key and id are required", ch.Key)
		}
		if _, dup := c.byKey[ch.Key]; dup {
			return nil, fmt.Errorf("model %q defined twice", ch.Key)
		}
		if ch.DisplayName == "" {
			ch.DisplayName = ch.ExternalID
		}
		c.byKey[ch.Key] = len(c.choices)
		c.choices = append(c.choices, ch)
	}

	if defaultKey == "" {
		defaultKey = c.choices[0].Key
	}
	if _, ok := c.byKey[defaultKey]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", defaultKey)
	}
	c.defaultKey = defaultKey

	return c, nil
}

// Lookup returns the choice for key, if present.
func (c *Catalog) Lookup(key string) (Choice, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Choice{}, false
	}
	return c.choices[i], true
}

// Resolve returns the choice for key, falling back to the default model when
// key is unknown. The boolean reports whether the fallback was applied.
func (c *Catalog) Resolve(key string) (Choice, bool) {
	if ch, ok := c.Lookup(key); ok {
		return ch, false
	}
	ch, _ := c.Lookup(c.defaultKey)
	return ch, true
}

// DefaultKey returns the key of the default model.
func (c *Catalog) DefaultKey() string {
	return c.defaultKey
}

// DisplayName returns the display name for key, or "Unknown Model".
func (c *Catalog) DisplayName(key string) string {
	if ch, ok := c.Lookup(key); ok {
		return ch.DisplayName
	}
	return "Unknown Model"
}

// List returns a copy of the choices in table order.
func (c *Catalog) List() []Choice {
	out := make([]Choice, len(c.choices))
	copy(out, c.choices)
	return out
}

// Entries returns the table in the shape served by GET /api/models.
func (c *Catalog) Entries() []llm.ModelEntry {
	out := make([]llm.ModelEntry, 0, len(c.choices))
	for _, ch := range c.choices {
		out = append(out, llm.ModelEntry{ID: ch.Key, Name: ch.DisplayName})
	}
	return out
}
