// Package snapshot reads a provider catalogue into a sorted, in-memory view.
//
// A prior snapshot is the live catalogue as fetched. A post snapshot is the
// live catalogue with the files of a staged submission copied into the
// download and their context records merged into its metadata.json, so the
// submission is read exactly as it would be once published.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// DataSet is the catalogue content of one data type.
type DataSet struct {
	Packages      []importer.Record
	Resources     []importer.Resource
	LinkageFields []string
}

// Snapshot maps a data type to its catalogue content. Data types with no
// packages and no resources are absent.
//
// Packages are sorted by id and resources by record id, with one entry per id.
type Snapshot struct {
	Types map[string]*DataSet
}

// DataTypes returns the snapshot's data types in sorted order.
func (s *Snapshot) DataTypes() []string {
	out := make([]string, 0, len(s.Types))
	for dt := range s.Types {
		out = append(out, dt)
	}
	sort.Strings(out)
	return out
}

// Builder builds snapshots.
type Builder struct {
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// NewBuilder returns a Builder. A positive fetchTimeout bounds catalogue
// acquisition only.
func NewBuilder(fetchTimeout time.Duration) *Builder {
	return &Builder{fetchTimeout: fetchTimeout, logger: log.WithComponent("snapshot")}
}

// Build fetches the importer's catalogue and reads it. A nil staged builds
// the prior snapshot; otherwise the staged files are spliced in first. The
// download is always released, and a release failure is joined onto the
// returned error.
func (b *Builder) Build(ctx context.Context, imp importer.Importer, staged *jobstate.Staged) (snap *Snapshot, err error) {
	mode := "prior"
	if staged != nil {
		mode = "post"
	}
	logger := b.logger.With("importer", imp.Name(), "mode", mode)

	fetchCtx := ctx
	if b.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, b.fetchTimeout)
		defer cancel()
	}
	dl, err := imp.Fetch(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s catalogue: %w", imp.Name(), err)
	}
	defer func() {
		if releaseErr := dl.Release(); releaseErr != nil {
			err = errors.Join(err, fmt.Errorf("release %s catalogue: %w", imp.Name(), releaseErr))
		}
	}()

	if staged != nil {
		if err := splice(dl.Dir(), staged); err != nil {
			return nil, err
		}
	}

	cat, err := imp.Open(dl.Dir())
	if err != nil {
		return nil, fmt.Errorf("open %s catalogue: %w", imp.Name(), err)
	}

	snap = &Snapshot{Types: make(map[string]*DataSet)}
	ds := read(cat)
	if len(ds.Packages) > 0 || len(ds.Resources) > 0 {
		snap.Types[cat.DataType()] = ds
	}
	logger.Debug("snapshot built", "data_type", cat.DataType(), "packages", len(ds.Packages), "resources", len(ds.Resources))
	return snap, nil
}

// splice copies the staged files into dir and merges their context records
// into dir/metadata.json. Staged records replace fetched ones.
func splice(dir string, staged *jobstate.Staged) error {
	slots := make([]string, 0, len(staged.Paths))
	for slot := range staged.Paths {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		src := staged.Paths[slot]
		if err := importer.CopyFile(src, filepath.Join(dir, filepath.Base(src))); err != nil {
			return fmt.Errorf("splice staged %s file: %w", slot, err)
		}
	}

	info, err := importer.ReadMetadataInfo(dir)
	if err != nil {
		return err
	}
	for name, rec := range staged.MetadataInfo {
		info[name] = rec
	}
	return importer.WriteMetadataInfo(dir, info)
}

// read sorts the catalogue's packages and resources by id. Records sharing an
// id are one catalogue entry; the last one read is kept.
func read(cat importer.Catalogue) *DataSet {
	packages := slices.Clone(cat.Packages())
	sort.SliceStable(packages, func(i, j int) bool {
		return packages[i].ID() < packages[j].ID()
	})
	packages = lastByID(packages, importer.Record.ID)

	resources := slices.Clone(cat.Resources())
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Record.ID() < resources[j].Record.ID()
	})
	resources = lastByID(resources, func(r importer.Resource) string { return r.Record.ID() })

	return &DataSet{
		Packages:      packages,
		Resources:     resources,
		LinkageFields: slices.Clone(cat.LinkageFields()),
	}
}

// lastByID drops all but the last of each run of equal ids in a sorted slice.
func lastByID[T any](sorted []T, id func(T) string) []T {
	out := sorted[:0]
	for i, v := range sorted {
		if i+1 < len(sorted) && id(sorted[i+1]) == id(v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
