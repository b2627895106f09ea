// Package catalog validates and normalizes requested model identifiers
// against the configured set before any upstream call is made.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownModel wraps rejections of models not in the catalog. Handlers
// map it to 400.
var ErrUnknownModel = errors.New("unknown model")

// Catalog is the configured set of models the relay will stream from, plus
// the default used when a request names none.
type Catalog struct {
	defaultModel string
	available    map[string]struct{}
}

// New builds a Catalog. The default model is always considered available,
// whether or not it appears in the list.
func New(defaultModel string, available []string) *Catalog {
	c := &Catalog{
		defaultModel: defaultModel,
		available:    make(map[string]struct{}, len(available)+1),
	}
	for _, m := range available {
		c.available[m] = struct{}{}
	}
	if defaultModel != "" {
		c.available[defaultModel] = struct{}{}
	}
	return c
}

// Resolve returns the concrete model id for a requested one: the default
// for an empty request, the requested id if configured, or ErrUnknownModel.
func (c *Catalog) Resolve(requested string) (string, error) {
	if requested == "" {
		return c.defaultModel, nil
	}
	if _, ok := c.available[requested]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, requested)
	}
	return requested, nil
}

// Models lists the catalog's model ids, sorted, for the /v1/models listing.
func (c *Catalog) Models() []string {
	out := make([]string, 0, len(c.available))
	for m := range c.available {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Default returns the fallback model id.
func (c *Catalog) Default() string {
	return c.defaultModel
}
