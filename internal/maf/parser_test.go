package maf

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// mafRows builds a MAF with a version comment and the given data rows.
func mafRows(rows ...string) string {
	header := strings.Join([]string{
		ColHugoSymbol, ColNCBIBuild, ColChromosome, ColStartPosition,
		ColVariantClassification, ColReferenceAllele, ColTumorSeqAllele1,
		ColTumorSeqAllele2, ColTumorSampleBarcode, ColHGVSpShort,
	}, "\t")
	return "#version 2.4\n" + header + "\n" + strings.Join(rows, "\n") + "\n"
}

const sampleMAF = "BRAF\tGRCh38\tchr7\t140753336\tMissense_Mutation\tA\tA\tT\tTCGA-01\tp.V600E\n" +
	"TP53\tGRCh37\t17\t7577120\tNonsense_Mutation\tC\tT\tC\tTCGA-02\tp.R213*\n" +
	"KRAS\t\t12\t25245350\tMissense_Mutation\tC\tC\tA\tTCGA-03\tp.G12V\n"

func TestParser_Records(t *testing.T) {
	p, err := NewParserFromReader(strings.NewReader(mafRows(strings.TrimSuffix(sampleMAF, "\n"))))
	require.NoError(t, err)
	defer p.Close()

	cols := p.Columns()
	assert.Equal(t, 2, cols.Chromosome)
	assert.Equal(t, 3, cols.StartPosition)
	assert.Equal(t, 7, cols.TumorSeqAllele2)
	assert.Equal(t, -1, cols.Consequence)

	tests := []struct {
		raw variant.Raw
		id  string
	}{
		{
			raw: variant.Raw{Chrom: "chr7", Pos: "140753336", Ref: "A", Alt: "T", Assembly: "GRCh38", Consequence: "missense_variant"},
			id:  "BRAF:p.V600E",
		},
		{
			raw: variant.Raw{Chrom: "17", Pos: "7577120", Ref: "C", Alt: "T", Assembly: "GRCh37", Consequence: "stop_gained"},
			id:  "TP53:p.R213*",
		},
		{
			raw: variant.Raw{Chrom: "12", Pos: "25245350", Ref: "C", Alt: "A", Consequence: "missense_variant"},
			id:  "KRAS:p.G12V",
		},
	}
	for _, tt := range tests {
		rec, err := p.Next(nil)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, tt.raw, rec.Raw)
		assert.Equal(t, tt.id, rec.ID())
	}

	rec, err := p.Next(nil)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Zero(t, p.Skipped())
}

func TestParser_NormalizesForFusion(t *testing.T) {
	p, err := NewParserFromReader(strings.NewReader(mafRows(strings.TrimSuffix(sampleMAF, "\n"))))
	require.NoError(t, err)
	defer p.Close()

	rec, err := p.Next(nil)
	require.NoError(t, err)
	v, err := variant.Normalize(rec.Raw)
	require.NoError(t, err)
	assert.Equal(t, "7", v.Chrom)
	assert.Equal(t, variant.GRCh38, v.Assembly)
	assert.Equal(t, "missense_variant", v.Consequence)

	rec, err = p.Next(nil)
	require.NoError(t, err)
	v, err = variant.Normalize(rec.Raw)
	require.NoError(t, err)
	assert.Equal(t, variant.GRCh37, v.Assembly)
}

func TestParser_SkipsUnscoreableRows(t *testing.T) {
	tests := []struct {
		name   string
		row    string
		reason string
	}{
		{"deletion", "EGFR\tGRCh38\t7\t55174772\tIn_Frame_Del\tGGAATTAAGAGAAGC\tGGAATTAAGAGAAGC\t-\tS1\tp.E746_A750del", "anchor base"},
		{"insertion", "ERBB2\tGRCh38\t17\t39724742\tIn_Frame_Ins\t-\t-\tGCATACGTGATG\tS1\tp.Y772_A775dup", "anchor base"},
		{"no tumor allele", "GENE\tGRCh38\t1\t100\tSilent\tA\tA\tA\tS1\t.", "differs from the reference"},
		{"short row", "GENE\tGRCh38\t1", "expected at least"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewParserFromReader(strings.NewReader(mafRows(tt.row)))
			require.NoError(t, err)
			defer p.Close()

			var skipped []*ParseError
			rec, err := p.Next(func(pe *ParseError) { skipped = append(skipped, pe) })
			require.NoError(t, err)
			assert.Nil(t, rec)
			require.Len(t, skipped, 1)
			assert.Equal(t, 3, skipped[0].Line)
			assert.Contains(t, skipped[0].Message, tt.reason)
			assert.Equal(t, 1, p.Skipped())
		})
	}
}

func TestParser_TumorAllele1Fallback(t *testing.T) {
	p, err := NewParserFromReader(strings.NewReader(mafRows("GENE\tGRCh38\t1\t100\tMissense_Mutation\tA\tG\tA\tS1\tp.X1Y")))
	require.NoError(t, err)
	defer p.Close()

	rec, err := p.Next(nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "G", rec.Raw.Alt)
}

func TestParser_ConsequenceColumnPreferred(t *testing.T) {
	in := "Chromosome\tStart_Position\tReference_Allele\tTumor_Seq_Allele2\tVariant_Classification\tConsequence\n" +
		"7\t140753336\tA\tT\tMissense_Mutation\tmissense_variant&splice_region_variant\n"
	p, err := NewParserFromReader(strings.NewReader(in))
	require.NoError(t, err)
	defer p.Close()

	rec, err := p.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, "missense_variant&splice_region_variant", rec.Raw.Consequence)
	assert.Empty(t, rec.ID())
}

func TestParser_MissingRequiredColumn(t *testing.T) {
	tests := []struct {
		header string
		column string
	}{
		{"Start_Position\tReference_Allele\tTumor_Seq_Allele2", ColChromosome},
		{"Chromosome\tReference_Allele\tTumor_Seq_Allele2", ColStartPosition},
		{"Chromosome\tStart_Position\tTumor_Seq_Allele2", ColReferenceAllele},
		{"Chromosome\tStart_Position\tReference_Allele", ColTumorSeqAllele2},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			_, err := NewParserFromReader(strings.NewReader(tt.header + "\n"))
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.column)
		})
	}

	_, err := NewParserFromReader(strings.NewReader("#only comments\n"))
	assert.ErrorContains(t, err, "no header line found")
}

func TestParser_GzipFile(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(mafRows(strings.TrimSuffix(sampleMAF, "\n"))))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "sample.maf.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	p, err := NewParser(path)
	require.NoError(t, err)
	defer p.Close()

	n := 0
	for {
		rec, err := p.Next(nil)
		require.NoError(t, err)
		if rec == nil {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
	assert.True(t, strings.HasPrefix(p.Header(), ColHugoSymbol))
}

func TestClassificationToSO(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Missense_Mutation", "missense_variant"},
		{"Silent", "synonymous_variant"},
		{"Frame_Shift_Del", "frameshift_variant"},
		{"Targeted_Region", "targeted_region"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassificationToSO(tt.in), tt.in)
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{Line: 42, Message: "required column not found"}
	assert.Equal(t, "maf parse error at line 42: required column not found", err.Error())
}
