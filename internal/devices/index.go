package devices

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// VendorIndex is the index.yaml shipped in every vendor directory.
type VendorIndex struct {
	Vendor      string                   `yaml:"vendor" json:"vendor"`
	Description string                   `yaml:"description" json:"description,omitempty"`
	Website     string                   `yaml:"website" json:"website,omitempty"`
	Templates   map[string][]TemplateRef `yaml:"templates" json:"templates"`
}

type TemplateRef struct {
	ID          string `yaml:"id" json:"id"`
	File        string `yaml:"file" json:"file"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Tested      bool   `yaml:"tested" json:"tested"`
	Datasheet   string `yaml:"datasheet" json:"datasheet,omitempty"`
}

// Count returns the number of templates across all categories.
func (v *VendorIndex) Count() int {
	n := 0
	for _, refs := range v.Templates {
		n += len(refs)
	}
	return n
}

// readVendorIndexes scans <searchPath>/<vendor>/index.yaml. Broken entries are logged and skipped.
func readVendorIndexes(searchPaths []string, logger *zap.Logger) []VendorIndex {
	vendors := make([]VendorIndex, 0)

	for _, searchPath := range searchPaths {
		entries, err := os.ReadDir(searchPath)
		if err != nil {
			if !os.IsNotExist(err) {
				logger.Warn("Failed to read template directory",
					zap.String("path", searchPath),
					zap.Error(err))
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			indexPath := filepath.Join(searchPath, entry.Name(), "index.yaml")
			data, err := os.ReadFile(indexPath)
			if err != nil {
				logger.Debug("Vendor index not found", zap.String("path", indexPath))
				continue
			}

			var index VendorIndex
			if err := yaml.Unmarshal(data, &index); err != nil {
				logger.Error("Failed to parse vendor index",
					zap.String("vendor", entry.Name()),
					zap.String("path", indexPath),
					zap.Error(err))
				continue
			}
			if index.Vendor == "" {
				index.Vendor = entry.Name()
			}

			vendors = append(vendors, index)
		}
	}

	return vendors
}
