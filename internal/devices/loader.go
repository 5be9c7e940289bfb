package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TemplateLoader reads JSON templates from the search paths and caches them.
type TemplateLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewTemplateLoader(searchPaths []string) (*TemplateLoader, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create validator: %w", err)
	}

	return &TemplateLoader{
		validator:   validator,
		searchPaths: searchPaths,
	}, nil
}

// Load resolves "<name>.json" (name may contain a vendor directory, e.g. "zeroerr/erob80").
func (l *TemplateLoader) Load(name string) (*Template, error) {
	// Cache-Check
	if cached, ok := l.cache.Load(name); ok {
		return cached.(*Template), nil
	}

	var data []byte
	var foundPath string

	for _, searchPath := range l.searchPaths {
		fullPath := filepath.Join(searchPath, name+".json")
		b, err := os.ReadFile(fullPath)
		if err == nil {
			data = b
			foundPath = fullPath
			break
		}
	}

	if data == nil {
		return nil, fmt.Errorf("template not found: %s (searched in: %v)", name, l.searchPaths)
	}

	return l.parse(name, foundPath, data)
}

func (l *TemplateLoader) parse(name, path string, data []byte) (*Template, error) {
	if err := l.validator.ValidateTemplate(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", path, err)
	}

	var doc templateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template: %w", err)
	}

	tmpl, err := doc.toTemplate()
	if err != nil {
		return nil, err
	}

	l.cache.Store(name, tmpl)
	return tmpl, nil
}

func (l *TemplateLoader) ClearCache() {
	l.cache.Range(func(key, value interface{}) bool {
		l.cache.Delete(key)
		return true
	})
}
