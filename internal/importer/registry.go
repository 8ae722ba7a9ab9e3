package importer

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bioplatforms/bpaworkflow/internal/config"
)

// Registry maps importer ids to importers.
type Registry struct {
	importers map[string]Importer
}

func NewRegistry() *Registry {
	return &Registry{importers: make(map[string]Importer)}
}

// FromConfig builds a registry holding one tabular importer per configured
// importer. Catalogue downloads go under <staging.dir>/downloads.
func FromConfig(cfg *config.Config) (*Registry, error) {
	reg := NewRegistry()
	workRoot := filepath.Join(cfg.Staging.Dir, "downloads")
	for _, name := range cfg.ImporterNames() {
		imp, err := NewTabular(name, cfg.Importers[name], workRoot)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(imp); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds imp after checking it exposes a complete capability set.
func (r *Registry) Register(imp Importer) error {
	if err := checkComplete(imp); err != nil {
		return err
	}
	if _, exists := r.importers[imp.Name()]; exists {
		return fmt.Errorf("importer %q registered twice", imp.Name())
	}
	r.importers[imp.Name()] = imp
	return nil
}

func (r *Registry) Get(name string) (Importer, bool) {
	imp, ok := r.importers[name]
	return imp, ok
}

// Lookup is Get with ErrUnknownImporter for missing ids.
func (r *Registry) Lookup(name string) (Importer, error) {
	imp, ok := r.importers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownImporter, name)
	}
	return imp, nil
}

// Names returns importer ids in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.importers))
	for name := range r.importers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Infos returns importer descriptions sorted by id.
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, len(r.importers))
	for _, name := range r.Names() {
		out = append(out, r.importers[name].Info())
	}
	return out
}

func checkComplete(imp Importer) error {
	if imp == nil {
		return fmt.Errorf("importer is nil")
	}
	name := imp.Name()
	if name == "" {
		return fmt.Errorf("importer has no name")
	}
	if imp.Info().DataType == "" {
		return fmt.Errorf("importer %q declares no data type", name)
	}
	if len(imp.Schema().Fields) == 0 {
		return fmt.Errorf("importer %q has an empty spreadsheet schema", name)
	}
	if len(imp.LinkageFields()) == 0 {
		return fmt.Errorf("importer %q declares no linkage fields", name)
	}
	return nil
}
