// Package maf reads variants from MAF (Mutation Annotation Format) files.
package maf

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// MAF column names read by the parser.
const (
	ColChromosome            = "Chromosome"
	ColStartPosition         = "Start_Position"
	ColReferenceAllele       = "Reference_Allele"
	ColTumorSeqAllele1       = "Tumor_Seq_Allele1"
	ColTumorSeqAllele2       = "Tumor_Seq_Allele2"
	ColNCBIBuild             = "NCBI_Build"
	ColVariantClassification = "Variant_Classification"
	ColConsequence           = "Consequence"
	ColHugoSymbol            = "Hugo_Symbol"
	ColHGVSpShort            = "HGVSp_Short"
	ColTumorSampleBarcode    = "Tumor_Sample_Barcode"
)

// ColumnIndices holds header positions of the columns the parser reads.
// Missing optional columns are -1.
type ColumnIndices struct {
	Chromosome            int
	StartPosition         int
	ReferenceAllele       int
	TumorSeqAllele1       int
	TumorSeqAllele2       int
	NCBIBuild             int
	VariantClassification int
	Consequence           int
	HugoSymbol            int
	HGVSpShort            int
	TumorSampleBarcode    int
}

// Record is one MAF row, reduced to what scoring needs.
type Record struct {
	Line       int
	Raw        variant.Raw // Assembly is empty when NCBI_Build is absent
	HugoSymbol string
	HGVSpShort string
	Sample     string
}

// ID labels the record in output, e.g. "KRAS:p.G12C". Empty when the row
// has no gene symbol.
func (r *Record) ID() string {
	switch {
	case r.HugoSymbol == "":
		return ""
	case r.HGVSpShort == "" || r.HGVSpShort == ".":
		return r.HugoSymbol
	}
	return r.HugoSymbol + ":" + r.HGVSpShort
}

// Parser reads variants from a MAF file.
type Parser struct {
	reader     *bufio.Reader
	closers    []io.Closer
	lineNumber int
	columns    ColumnIndices
	headerLine string
	skipped    int
}

// NewParser opens a MAF file, plain or gzipped. A path of "-" reads
// standard input.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open maf file: %w", err)
	}
	p, err := NewParserFromReader(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	p.closers = append(p.closers, file)
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader. Gzipped input is
// detected from its magic bytes.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	br := bufio.NewReader(r)
	p := &Parser{reader: br}

	if magic, _ := br.Peek(2); len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(gz)
		p.closers = append(p.closers, gz)
	}

	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Parser) readLine() (string, bool, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", false, err
		}
		if line == "" {
			return "", false, nil
		}
	}
	p.lineNumber++
	return strings.TrimRight(line, "\r\n"), true, nil
}

// parseHeader skips "#" comment lines and indexes the column header.
func (p *Parser) parseHeader() error {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if !ok {
			return p.errorf("no header line found")
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p.headerLine = line
		return p.indexColumns(strings.Split(line, "\t"))
	}
}

func (p *Parser) indexColumns(names []string) error {
	p.columns = ColumnIndices{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1, -1}
	for i, name := range names {
		switch name {
		case ColChromosome:
			p.columns.Chromosome = i
		case ColStartPosition:
			p.columns.StartPosition = i
		case ColReferenceAllele:
			p.columns.ReferenceAllele = i
		case ColTumorSeqAllele1:
			p.columns.TumorSeqAllele1 = i
		case ColTumorSeqAllele2:
			p.columns.TumorSeqAllele2 = i
		case ColNCBIBuild:
			p.columns.NCBIBuild = i
		case ColVariantClassification:
			p.columns.VariantClassification = i
		case ColConsequence:
			p.columns.Consequence = i
		case ColHugoSymbol:
			p.columns.HugoSymbol = i
		case ColHGVSpShort:
			p.columns.HGVSpShort = i
		case ColTumorSampleBarcode:
			p.columns.TumorSampleBarcode = i
		}
	}

	for _, req := range []struct {
		name string
		idx  int
	}{
		{ColChromosome, p.columns.Chromosome},
		{ColStartPosition, p.columns.StartPosition},
		{ColReferenceAllele, p.columns.ReferenceAllele},
		{ColTumorSeqAllele2, p.columns.TumorSeqAllele2},
	} {
		if req.idx < 0 {
			return p.errorf("required column '%s' not found in header", req.name)
		}
	}
	return nil
}

// Next returns the next scoreable record. Malformed rows and rows whose
// alleles cannot be scored (MAF "-" indel alleles carry no anchor base) are
// counted, passed to onSkip (if non-nil) and skipped. Returns nil, nil at
// end of input.
func (p *Parser) Next(onSkip func(*ParseError)) (*Record, error) {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return nil, fmt.Errorf("read maf line: %w", err)
		}
		if !ok {
			return nil, nil
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, pe := p.parseLine(line)
		if pe != nil {
			p.skipped++
			if onSkip != nil {
				onSkip(pe)
			}
			continue
		}
		return rec, nil
	}
}

func (p *Parser) parseLine(line string) (*Record, *ParseError) {
	fields := strings.Split(line, "\t")
	field := func(idx int) string {
		if idx < 0 || idx >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[idx])
	}

	c := p.columns
	need := max(c.Chromosome, c.StartPosition, c.ReferenceAllele, c.TumorSeqAllele2)
	if len(fields) <= need {
		return nil, p.errorf("expected at least %d columns, found %d", need+1, len(fields))
	}

	ref := field(c.ReferenceAllele)
	alt := tumorAllele(ref, field(c.TumorSeqAllele1), field(c.TumorSeqAllele2))
	if ref == "-" || alt == "-" {
		return nil, p.errorf("indel allele '-' has no anchor base")
	}
	if alt == "" {
		return nil, p.errorf("no tumor allele differs from the reference")
	}

	consequence := field(c.Consequence)
	if consequence == "" {
		consequence = ClassificationToSO(field(c.VariantClassification))
	}

	return &Record{
		Line: p.lineNumber,
		Raw: variant.Raw{
			Chrom:       field(c.Chromosome),
			Pos:         field(c.StartPosition),
			Ref:         ref,
			Alt:         alt,
			Assembly:    field(c.NCBIBuild),
			Consequence: consequence,
		},
		HugoSymbol: field(c.HugoSymbol),
		HGVSpShort: field(c.HGVSpShort),
		Sample:     field(c.TumorSampleBarcode),
	}, nil
}

// tumorAllele picks the non-reference tumor allele. Tumor_Seq_Allele2 is
// preferred; Tumor_Seq_Allele1 is used when allele 2 repeats the reference.
func tumorAllele(ref, allele1, allele2 string) string {
	if allele2 != "" && !strings.EqualFold(allele2, ref) {
		return allele2
	}
	if allele1 != "" && !strings.EqualFold(allele1, ref) {
		return allele1
	}
	return ""
}

// classificationSO maps MAF Variant_Classification values to SO terms.
var classificationSO = map[string]string{
	"Missense_Mutation":      "missense_variant",
	"Nonsense_Mutation":      "stop_gained",
	"Nonstop_Mutation":       "stop_lost",
	"Silent":                 "synonymous_variant",
	"Splice_Site":            "splice_donor_variant",
	"Splice_Region":          "splice_region_variant",
	"Translation_Start_Site": "start_lost",
	"Frame_Shift_Del":        "frameshift_variant",
	"Frame_Shift_Ins":        "frameshift_variant",
	"In_Frame_Del":           "inframe_deletion",
	"In_Frame_Ins":           "inframe_insertion",
	"3'UTR":                  "3_prime_UTR_variant",
	"5'UTR":                  "5_prime_UTR_variant",
	"3'Flank":                "downstream_gene_variant",
	"5'Flank":                "upstream_gene_variant",
	"Intron":                 "intron_variant",
	"IGR":                    "intergenic_variant",
	"RNA":                    "non_coding_transcript_exon_variant",
}

// ClassificationToSO converts a Variant_Classification to its SO term.
// Unknown classifications are returned lower-cased so they never read as
// missense; an empty classification stays empty.
func ClassificationToSO(classification string) string {
	if so, ok := classificationSO[classification]; ok {
		return so
	}
	return strings.ToLower(classification)
}

func (p *Parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// Header returns the MAF column header line.
func (p *Parser) Header() string {
	return p.headerLine
}

// Columns returns the parsed column indices.
func (p *Parser) Columns() ColumnIndices {
	return p.columns
}

// Skipped returns the number of rows skipped by Next.
func (p *Parser) Skipped() int {
	return p.skipped
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the gzip stream and underlying file, if any.
func (p *Parser) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	p.closers = nil
	return errors.Join(errs...)
}

// ParseError represents an error during MAF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("maf parse error at line %d: %s", e.Line, e.Message)
}
