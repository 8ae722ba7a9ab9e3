// Package importer defines the capability contract the validation pipeline
// needs from a data-type specific importer, a registry keyed by importer id,
// and a configuration-driven "tabular" importer.
//
// An importer owns four things the pipeline treats as opaque:
//   - the spreadsheet schema and the reader that reports structural errors
//   - the MD5 manifest filename convention
//   - access to the live catalogue (a scoped Download that must be released)
//   - the linkage key definition joining resources to packages
//
// The tabular importer builds packages from submission spreadsheets (one per
// row) and resources from MD5 manifests (one per conforming entry). A catalogue
// download directory therefore holds *.xlsx, *.md5 and a metadata.json file
// mapping each file's basename to the ticket context it was submitted under.
package importer
