package config

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog is the provider -> model metadata file (config/models.yaml). It is
// optional; models absent from it fall back to name-based provider detection
// and empty default parameters.
type Catalog struct {
	Providers map[string]map[string]CatalogEntry `yaml:"providers"`
}

// CatalogEntry holds per-model defaults declared in the catalog.
type CatalogEntry struct {
	Parameters map[string]interface{} `yaml:"parameters"`
}

var (
	catalogOnce sync.Once
	catalog     *Catalog
)

var catalogPaths = []string{
	os.Getenv("SAGEFLOW_MODELS_PATH"),
	"./config/models.yaml",
	"../../config/models.yaml",
}

// LoadCatalog reads the model catalog once. Absence of the file is not an
// error; it simply yields a nil catalog.
func LoadCatalog() *Catalog {
	catalogOnce.Do(func() {
		for _, p := range catalogPaths {
			if p == "" {
				continue
			}
			data, err := os.ReadFile(p)
			if err != nil {
				continue
			}
			var c Catalog
			if err := yaml.Unmarshal(data, &c); err != nil {
				log.Printf("WARNING: failed to parse model catalog %s: %v", p, err)
				continue
			}
			catalog = &c
			return
		}
		if path, ok := findUpCatalog(); ok {
			if data, err := os.ReadFile(path); err == nil {
				var c Catalog
				if err := yaml.Unmarshal(data, &c); err == nil {
					catalog = &c
				}
			}
		}
	})
	return catalog
}

// findUpCatalog searches parent directories for config/models.yaml starting
// at CWD, to cope with package-relative test working directories.
func findUpCatalog() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 6; i++ {
		cand := filepath.Join(wd, "config", "models.yaml")
		if _, err := os.Stat(cand); err == nil {
			return cand, true
		}
		wd = filepath.Dir(wd)
	}
	return "", false
}
