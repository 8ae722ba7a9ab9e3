package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/snapshot"
)

var linkage = []string{"sample_id", "flow_id"}

func pkg(id, sample, flow string) importer.Record {
	return importer.Record{"id": id, "sample_id": sample, "flow_id": flow}
}

func res(name, ticket, sample, flow string) importer.Resource {
	return importer.Resource{
		Key:    importer.LinkageKey{sample, flow},
		Origin: "https://downloads.example.org/amplicon/" + ticket + "/" + name,
		Record: importer.Record{"id": name, "sample_id": sample, "flow_id": flow},
	}
}

func dataSet(packages []importer.Record, resources []importer.Resource) *snapshot.DataSet {
	return &snapshot.DataSet{Packages: packages, Resources: resources, LinkageFields: linkage}
}

func TestCheckLinkageClean(t *testing.T) {
	t.Parallel()
	ds := dataSet(
		[]importer.Record{pkg("p1", "102", "HAAAA"), pkg("p2", "103", "HBBBB")},
		[]importer.Resource{
			res("102_HAAAA_R1.fastq.gz", "T-1", "102", "HAAAA"),
			res("103_HBBBB_R1.fastq.gz", "T-1", "103", "HBBBB"),
		},
	)
	assert.Empty(t, CheckLinkage(ds))
}

func TestCheckLinkageDuplicate(t *testing.T) {
	t.Parallel()
	ds := dataSet(
		[]importer.Record{pkg("p1", "102", "HAAAA"), pkg("p2", "102", "HAAAA")},
		[]importer.Resource{res("102_HAAAA_R1.fastq.gz", "T-1", "102", "HAAAA")},
	)
	assert.Equal(t, []string{"more than one package linked for tuple (102, HAAAA)"}, CheckLinkage(ds))
}

func TestCheckLinkageDangling(t *testing.T) {
	t.Parallel()
	ds := dataSet(
		[]importer.Record{pkg("p1", "102", "HAAAA")},
		[]importer.Resource{
			res("102_HAAAA_R1.fastq.gz", "T-1", "102", "HAAAA"),
			res("999_HZZZZ_R1.fastq.gz", "BPAOPS-999", "999", "HZZZZ"),
		},
	)
	assert.Equal(t, []string{
		"dangling resource 999_HZZZZ_R1.fastq.gz (ticket: BPAOPS-999, linkage: (999, HZZZZ))",
	}, CheckLinkage(ds))
}

func TestCheckLinkageOrphan(t *testing.T) {
	t.Parallel()
	ds := dataSet([]importer.Record{pkg("p1", "102", "HAAAA")}, nil)
	assert.Equal(t, []string{"p1: package has no linked resources, tuple: (102, HAAAA)"}, CheckLinkage(ds))
}

func TestCheckLinkageOrderAndLastWriterWins(t *testing.T) {
	t.Parallel()
	ds := dataSet(
		[]importer.Record{
			pkg("p1", "102", "HAAAA"),
			pkg("p3", "104", "HCCCC"),
			pkg("p2", "102", "HAAAA"),
		},
		[]importer.Resource{res("105_HDDDD_R1.fastq.gz", "T-9", "105", "HDDDD")},
	)
	assert.Equal(t, []string{
		"more than one package linked for tuple (102, HAAAA)",
		"dangling resource 105_HDDDD_R1.fastq.gz (ticket: T-9, linkage: (105, HDDDD))",
		"p2: package has no linked resources, tuple: (102, HAAAA)",
		"p3: package has no linked resources, tuple: (104, HCCCC)",
	}, CheckLinkage(ds))
}

func TestDiff(t *testing.T) {
	t.Parallel()
	empty := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{}}
	one := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{"amplicon": dataSet(nil, nil)}}
	two := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{
		"metagenomics": dataSet(nil, nil),
		"amplicon":     dataSet(nil, nil),
	}}

	assert.Equal(t, []string{}, Diff(one, one))
	assert.Equal(t, []string{"amplicon"}, Diff(empty, one))
	assert.Equal(t, []string{"metagenomics"}, Diff(one, two))
	assert.Equal(t, []string{}, Diff(two, one))
}

func TestReconcile(t *testing.T) {
	t.Parallel()
	prior := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{}}
	post := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{
		"b-type": dataSet([]importer.Record{pkg("b1", "1", "F")}, nil),
		"a-type": dataSet(nil, []importer.Resource{res("x.fastq.gz", "T", "2", "G")}),
	}}

	report := Reconcile(prior, post)
	assert.Equal(t, []string{"a-type", "b-type"}, report.NewDataTypes)
	assert.Equal(t, []string{
		"dangling resource x.fastq.gz (ticket: T, linkage: (2, G))",
		"b1: package has no linked resources, tuple: (1, F)",
	}, report.Diagnostics)
}

func TestReconcileEmpty(t *testing.T) {
	t.Parallel()
	empty := &snapshot.Snapshot{Types: map[string]*snapshot.DataSet{}}
	report := Reconcile(empty, empty)
	assert.Equal(t, []string{}, report.NewDataTypes)
	assert.Equal(t, []string{}, report.Diagnostics)
}

func TestTicketOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "BPAOPS-999", ticketOf("https://example.com/does-not-exist/BPAOPS-999/a.fastq.gz"))
	assert.Equal(t, "", ticketOf("a.fastq.gz"))
}
