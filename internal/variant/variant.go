// Package variant canonicalizes variant records into a stable identity and
// produces the alternate textual encodings that scoring backends accept.
package variant

import (
	"fmt"
	"strconv"
	"strings"
)

// Genome assemblies.
const (
	GRCh38 = "GRCh38"
	GRCh37 = "GRCh37"
)

// Raw holds variant fields as received from a caller. Any field may be empty
// or use an alternate naming convention (e.g. "chr7", "hg38").
type Raw struct {
	Chrom       string `json:"chrom"`
	Pos         string `json:"pos"`
	Ref         string `json:"ref"`
	Alt         string `json:"alt"`
	Assembly    string `json:"assembly,omitempty"`
	Consequence string `json:"consequence,omitempty"` // optional SO term hint, e.g. "missense_variant"
}

// Variant is the canonical, immutable identity of a variant.
type Variant struct {
	Chrom       string `json:"chrom"` // without "chr" prefix, e.g. "7", "X", "MT"
	Pos         int64  `json:"pos"`   // 1-based genomic position
	Ref         string `json:"ref"`
	Alt         string `json:"alt"`
	Assembly    string `json:"assembly"`
	Consequence string `json:"consequence"`
}

// Encoding is one textual representation of a variant for a backend.
type Encoding struct {
	Chrom string
	Pos   int64
	Ref   string
	Alt   string
}

// String renders the encoding as chrom:pos:ref:alt.
func (e Encoding) String() string {
	return e.Chrom + ":" + strconv.FormatInt(e.Pos, 10) + ":" + e.Ref + ":" + e.Alt
}

// InvalidVariantError reports a missing or malformed required field.
type InvalidVariantError struct {
	Field  string
	Reason string
}

func (e *InvalidVariantError) Error() string {
	return fmt.Sprintf("invalid variant: %s %s", e.Field, e.Reason)
}

// Normalize validates raw fields and returns the canonical Variant.
func Normalize(r Raw) (Variant, error) {
	chrom := NormalizeChrom(strings.TrimSpace(r.Chrom))
	if chrom == "" {
		return Variant{}, &InvalidVariantError{Field: "chrom", Reason: "is required"}
	}

	posStr := strings.TrimSpace(r.Pos)
	if posStr == "" {
		return Variant{}, &InvalidVariantError{Field: "pos", Reason: "is required"}
	}
	pos, err := strconv.ParseInt(posStr, 10, 64)
	if err != nil {
		return Variant{}, &InvalidVariantError{Field: "pos", Reason: fmt.Sprintf("is not numeric: %q", posStr)}
	}
	if pos <= 0 {
		return Variant{}, &InvalidVariantError{Field: "pos", Reason: "must be positive"}
	}

	ref, err := normalizeAllele("ref", r.Ref)
	if err != nil {
		return Variant{}, err
	}
	alt, err := normalizeAllele("alt", r.Alt)
	if err != nil {
		return Variant{}, err
	}

	return Variant{
		Chrom:       chrom,
		Pos:         pos,
		Ref:         ref,
		Alt:         alt,
		Assembly:    NormalizeAssembly(r.Assembly),
		Consequence: strings.TrimSpace(r.Consequence),
	}, nil
}

// Parse parses a "chrom:pos:ref:alt" string (also accepting "-" separators
// and "ref>alt") into a canonical Variant on the given assembly.
func Parse(s, assembly string) (Variant, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ">", ":")
	s = strings.ReplaceAll(s, "-", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Variant{}, &InvalidVariantError{Field: "variant", Reason: fmt.Sprintf("expected chrom:pos:ref:alt, got %q", s)}
	}
	return Normalize(Raw{Chrom: parts[0], Pos: parts[1], Ref: parts[2], Alt: parts[3], Assembly: assembly})
}

func normalizeAllele(field, allele string) (string, error) {
	a := strings.ToUpper(strings.TrimSpace(allele))
	if a == "" {
		return "", &InvalidVariantError{Field: field, Reason: "is required"}
	}
	for i := 0; i < len(a); i++ {
		switch a[i] {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return "", &InvalidVariantError{Field: field, Reason: fmt.Sprintf("contains non-nucleotide %q", a[i])}
		}
	}
	return a, nil
}

// NormalizeChrom returns the chromosome name without "chr" prefix, with sex
// chromosomes upper-cased and the mitochondrial contig reported as "MT". A
// bare "chr" normalizes to the empty string.
func NormalizeChrom(chrom string) string {
	if len(chrom) >= 3 && strings.EqualFold(chrom[:3], "chr") {
		chrom = chrom[3:]
	}
	switch strings.ToUpper(chrom) {
	case "X":
		return "X"
	case "Y":
		return "Y"
	case "M", "MT":
		return "MT"
	}
	return chrom
}

// NormalizeAssembly maps assembly aliases onto GRCh37/GRCh38. Empty or
// unrecognized values default to GRCh38.
func NormalizeAssembly(assembly string) string {
	switch strings.ToLower(strings.TrimSpace(assembly)) {
	case "grch37", "hg19", "37":
		return GRCh37
	}
	return GRCh38
}

// IsSNV returns true if the variant is a single nucleotide variant.
func (v Variant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1
}

// UCSCChrom returns the chromosome with a "chr" prefix ("chrM" for MT).
func (v Variant) UCSCChrom() string {
	if v.Chrom == "MT" {
		return "chrM"
	}
	return "chr" + v.Chrom
}

// Encodings returns the textual encodings to try, in order, against backends
// that are strict about chromosome naming.
func (v Variant) Encodings() []Encoding {
	return []Encoding{
		{Chrom: v.UCSCChrom(), Pos: v.Pos, Ref: v.Ref, Alt: v.Alt},
		{Chrom: v.Chrom, Pos: v.Pos, Ref: v.Ref, Alt: v.Alt},
	}
}

// Key returns the compact identity "chrom:pos:ref>alt".
func (v Variant) Key() string {
	return v.Chrom + ":" + strconv.FormatInt(v.Pos, 10) + ":" + v.Ref + ">" + v.Alt
}

// String renders the variant as chrom:pos:ref:alt (assembly).
func (v Variant) String() string {
	return fmt.Sprintf("%s:%d:%s:%s (%s)", v.Chrom, v.Pos, v.Ref, v.Alt, v.Assembly)
}

// ReverseComplement returns the reverse complement of a DNA sequence.
func ReverseComplement(seq string) string {
	n := len(seq)
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = Complement(seq[n-1-i])
	}
	return string(out)
}

// Complement returns the complement of a single base. Unknown bases map to N.
func Complement(base byte) byte {
	switch base {
	case 'A', 'a':
		return 'T'
	case 'T', 't':
		return 'A'
	case 'G', 'g':
		return 'C'
	case 'C', 'c':
		return 'G'
	}
	return 'N'
}
