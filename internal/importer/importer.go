package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrUnreadableSpreadsheet wraps failures to open the spreadsheet container.
	ErrUnreadableSpreadsheet = errors.New("spreadsheet could not be read")
	ErrUnknownImporter       = errors.New("unknown importer")
)

// MetadataInfoFile is the per-download document mapping file basenames to
// their submission context.
const MetadataInfoFile = "metadata.json"

// BaseURLKey is the context key holding the base URL files were published under.
const BaseURLKey = "base_url"

// MetadataInfo maps a file basename to its context record.
type MetadataInfo map[string]map[string]string

//go:generate mockgen -destination=mocks/mock_importer.go -package=mocks github.com/bioplatforms/bpaworkflow/internal/importer Importer,Download,Catalogue

// Importer is the capability set one data type provides to the pipeline.
type Importer interface {
	Name() string
	Info() Info
	Schema() Schema

	// ReadSpreadsheet returns structural errors in the sheet at path. context is
	// the file's metadata record and must carry every ContextFields entry.
	ReadSpreadsheet(path string, context map[string]string) ([]string, error)

	// ParseManifest applies the filename convention to the manifest at path.
	ParseManifest(path string) (*ManifestResult, error)

	// Fetch downloads the live catalogue. The caller must Release it.
	Fetch(ctx context.Context) (Download, error)

	// Open builds a catalogue from a download directory.
	Open(dir string) (Catalogue, error)

	LinkageFields() []string
	ContextFields() []string
}

// Info describes an importer for listings.
type Info struct {
	Name       string `json:"slug"`
	Project    string `json:"project"`
	Title      string `json:"title"`
	Omics      string `json:"omics,omitempty"`
	Technology string `json:"technology,omitempty"`
	Analysed   bool   `json:"analysed"`
	Pool       bool   `json:"pool"`
	DataType   string `json:"data_type"`
}

// Field maps a spreadsheet column onto a record attribute.
type Field struct {
	Name     string
	Column   string
	Required bool
	Pattern  *regexp.Regexp
}

// Schema is the column layout of a submission sheet.
type Schema struct {
	Sheet     string
	HeaderRow int
	Fields    []Field
}

// Download is a scoped working copy of the live catalogue.
type Download interface {
	Dir() string
	Release() error
}

// Catalogue is the package/resource view of one download.
type Catalogue interface {
	DataType() string
	LinkageFields() []string
	Packages() []Record
	Resources() []Resource
}

// Record is a package or resource record. Every record has an "id".
type Record map[string]string

func (r Record) ID() string { return r["id"] }

// LinkageKey is the tuple of field values joining a resource to a package.
type LinkageKey []string

func (k LinkageKey) String() string {
	return "(" + strings.Join(k, ", ") + ")"
}

// MapKey returns a value usable as a map key.
func (k LinkageKey) MapKey() string {
	return strings.Join(k, "\x1f")
}

// KeyOf extracts the linkage key from a record.
func KeyOf(r Record, fields []string) LinkageKey {
	key := make(LinkageKey, len(fields))
	for i, f := range fields {
		key[i] = r[f]
	}
	return key
}

// Resource is a (linkage key, origin locator, record) tuple.
type Resource struct {
	Key    LinkageKey
	Origin string
	Record Record
}

// ReadMetadataInfo loads dir/metadata.json. A missing file yields an empty map.
func ReadMetadataInfo(dir string) (MetadataInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataInfoFile))
	if errors.Is(err, os.ErrNotExist) {
		return MetadataInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", MetadataInfoFile, err)
	}
	info := MetadataInfo{}
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", MetadataInfoFile, err)
	}
	return info, nil
}

// WriteMetadataInfo replaces dir/metadata.json.
func WriteMetadataInfo(dir string, info MetadataInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", MetadataInfoFile, err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataInfoFile), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", MetadataInfoFile, err)
	}
	return nil
}
