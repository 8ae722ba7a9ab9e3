package importer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// Tabular is an importer defined entirely by configuration.
type Tabular struct {
	name       string
	conf       config.ImporterConf
	schema     Schema
	convention *regexp.Regexp
	source     Source
	workRoot   string
	logger     *slog.Logger
}

var _ Importer = (*Tabular)(nil)

// NewTabular compiles conf into an importer. Downloads are created under
// workRoot.
func NewTabular(name string, conf config.ImporterConf, workRoot string) (*Tabular, error) {
	convention, err := regexp.Compile(conf.Manifest.Pattern)
	if err != nil {
		return nil, fmt.Errorf("importer %q: manifest.pattern: %w", name, err)
	}

	schema := Schema{
		Sheet:     conf.Spreadsheet.Sheet,
		HeaderRow: conf.Spreadsheet.HeaderRow,
	}
	fieldNames := make(map[string]bool)
	for i, fc := range conf.Spreadsheet.Fields {
		if fc.Name == "" || fc.Column == "" {
			return nil, fmt.Errorf("importer %q: spreadsheet.fields[%d] needs name and column", name, i)
		}
		field := Field{Name: fc.Name, Column: fc.Column, Required: fc.Required}
		if fc.Pattern != "" {
			if field.Pattern, err = regexp.Compile(fc.Pattern); err != nil {
				return nil, fmt.Errorf("importer %q: field %q pattern: %w", name, fc.Name, err)
			}
		}
		fieldNames[fc.Name] = true
		schema.Fields = append(schema.Fields, field)
	}

	if !fieldNames[conf.IDField] {
		return nil, fmt.Errorf("importer %q: id_field %q is not a spreadsheet field", name, conf.IDField)
	}
	groups := convention.SubexpNames()
	for _, f := range conf.Linkage {
		if !fieldNames[f] {
			return nil, fmt.Errorf("importer %q: linkage field %q is not a spreadsheet field", name, f)
		}
		if !slices.Contains(groups, f) {
			return nil, fmt.Errorf("importer %q: linkage field %q is not a named group of manifest.pattern", name, f)
		}
	}

	source, err := NewSource(conf.Source)
	if err != nil {
		return nil, fmt.Errorf("importer %q: %w", name, err)
	}

	return &Tabular{
		name:       name,
		conf:       conf,
		schema:     schema,
		convention: convention,
		source:     source,
		workRoot:   workRoot,
		logger:     log.WithImporter(name),
	}, nil
}

func (t *Tabular) Name() string { return t.name }

func (t *Tabular) Info() Info {
	return Info{
		Name:       t.name,
		Project:    t.conf.Project,
		Title:      t.conf.Title,
		Omics:      t.conf.Omics,
		Technology: t.conf.Technology,
		Analysed:   t.conf.Analysed,
		Pool:       t.conf.Pool,
		DataType:   t.conf.DataType,
	}
}

func (t *Tabular) Schema() Schema { return t.schema }

func (t *Tabular) LinkageFields() []string { return slices.Clone(t.conf.Linkage) }

func (t *Tabular) ContextFields() []string { return slices.Clone(t.conf.ContextFields) }

func (t *Tabular) ReadSpreadsheet(path string, context map[string]string) ([]string, error) {
	if err := t.checkContext(filepath.Base(path), context); err != nil {
		return nil, err
	}
	_, errs, err := readSheet(t.schema, path)
	return errs, err
}

func (t *Tabular) ParseManifest(path string) (*ManifestResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f, t.convention)
}

func (t *Tabular) Fetch(ctx context.Context) (Download, error) {
	return t.source.Fetch(ctx, t.workRoot)
}

// Open reads every spreadsheet and manifest in dir. Each file needs an entry
// in dir/metadata.json.
func (t *Tabular) Open(dir string) (Catalogue, error) {
	info, err := ReadMetadataInfo(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalogue directory: %w", err)
	}

	cat := &tabularCatalogue{dataType: t.conf.DataType, linkage: t.LinkageFields()}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".xlsx":
			fileInfo, ok := info[name]
			if !ok {
				return nil, fmt.Errorf("no metadata info for %s", name)
			}
			if err := t.loadPackages(cat, filepath.Join(dir, name), fileInfo); err != nil {
				return nil, err
			}
		case ".md5":
			fileInfo, ok := info[name]
			if !ok {
				return nil, fmt.Errorf("no metadata info for %s", name)
			}
			if err := t.loadResources(cat, filepath.Join(dir, name), fileInfo); err != nil {
				return nil, err
			}
		}
	}
	return cat, nil
}

func (t *Tabular) loadPackages(cat *tabularCatalogue, path string, context map[string]string) error {
	if err := t.checkContext(filepath.Base(path), context); err != nil {
		return err
	}
	records, errs, err := readSheet(t.schema, path)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(errs) > 0 {
		t.logger.Debug("catalogue spreadsheet has structural errors", "file", filepath.Base(path), "errors", len(errs))
	}
	for _, rec := range records {
		rawID := rec[t.conf.IDField]
		if rawID == "" {
			continue
		}
		for _, k := range t.conf.ContextFields {
			rec[k] = context[k]
		}
		rec["id"] = t.conf.IDPrefix + rawID
		cat.packages = append(cat.packages, rec)
	}
	return nil
}

func (t *Tabular) loadResources(cat *tabularCatalogue, path string, context map[string]string) error {
	if err := t.checkContext(filepath.Base(path), context); err != nil {
		return err
	}
	res, err := t.ParseManifest(path)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	base := t.originBase(context)
	for _, entry := range res.Entries {
		rec := Record{"id": entry.Filename, "name": entry.Filename, "md5": entry.MD5}
		for k, v := range entry.Attrs {
			rec[k] = v
		}
		cat.resources = append(cat.resources, Resource{
			Key:    KeyOf(rec, t.conf.Linkage),
			Origin: base + entry.Filename,
			Record: rec,
		})
	}
	return nil
}

// originBase is base_url followed by the context field values, one path
// segment each, ending in "/".
func (t *Tabular) originBase(context map[string]string) string {
	parts := []string{strings.TrimRight(context[BaseURLKey], "/")}
	for _, k := range t.conf.ContextFields {
		parts = append(parts, context[k])
	}
	return strings.Join(parts, "/") + "/"
}

func (t *Tabular) checkContext(file string, context map[string]string) error {
	var missing []string
	for _, k := range append([]string{BaseURLKey}, t.conf.ContextFields...) {
		if context[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing context %s for %s", strings.Join(missing, ", "), file)
	}
	return nil
}

type tabularCatalogue struct {
	dataType  string
	linkage   []string
	packages  []Record
	resources []Resource
}

func (c *tabularCatalogue) DataType() string        { return c.dataType }
func (c *tabularCatalogue) LinkageFields() []string { return c.linkage }
func (c *tabularCatalogue) Packages() []Record      { return c.packages }
func (c *tabularCatalogue) Resources() []Resource   { return c.resources }
