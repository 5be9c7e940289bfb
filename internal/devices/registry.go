package devices

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Registry resolves template names to validated templates. Built-in templates
// take precedence over files in the search paths.
type Registry struct {
	builtin     map[string]*Template
	loader      *TemplateLoader
	searchPaths []string
	logger      *zap.Logger
}

func NewRegistry(searchPaths []string, logger *zap.Logger) (*Registry, error) {
	loader, err := NewTemplateLoader(searchPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to create template loader: %w", err)
	}

	erob := EROBTemplate()
	if err := erob.Syncs.Validate(); err != nil {
		return nil, fmt.Errorf("built-in template %s is invalid: %w", erob.ID, err)
	}

	return &Registry{
		builtin:     map[string]*Template{erob.ID: erob},
		loader:      loader,
		searchPaths: searchPaths,
		logger:      logger,
	}, nil
}

// Lookup returns the template registered under name.
func (r *Registry) Lookup(name string) (*Template, error) {
	if t, ok := r.builtin[name]; ok {
		return t, nil
	}

	t, err := r.loader.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", name, err)
	}

	r.logger.Debug("Template loaded",
		zap.String("name", name),
		zap.String("identity", t.Identity.String()),
		zap.Int("entries", len(t.Syncs.Entries())))

	return t, nil
}

// Builtin lists the compiled-in templates sorted by ID.
func (r *Registry) Builtin() []*Template {
	out := make([]*Template, 0, len(r.builtin))
	for _, t := range r.builtin {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Vendors reads the vendor indexes below the search paths.
func (r *Registry) Vendors() []VendorIndex {
	return readVendorIndexes(r.searchPaths, r.logger)
}
