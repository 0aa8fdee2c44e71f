// Package vcf reads variant records from VCF files for batch scoring.
package vcf

import (
	"strconv"
	"strings"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Variant represents a single genomic variant from a VCF file.
type Variant struct {
	Chrom  string            // Chromosome name as written (e.g., "12", "chr12")
	Pos    int64             // 1-based genomic position
	ID     string            // Variant identifier (e.g., rs ID)
	Ref    string            // Reference allele
	Alt    string            // Alternate allele (single allele after splitting)
	Qual   float64           // Quality score
	Filter string            // Filter status (PASS or filter name)
	Info   map[string]string // INFO key-value pairs; flags map to ""
}

// IsSNV returns true if the variant is a single nucleotide variant.
func (v *Variant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1
}

// IsIndel returns true if the variant is an insertion or deletion.
func (v *Variant) IsIndel() bool {
	return len(v.Ref) != len(v.Alt)
}

// Consequence returns the SO consequence term(s) annotated in INFO, from a
// plain Consequence key or the first VEP CSQ / snpEff ANN entry. Returns ""
// when the record is unannotated.
func (v *Variant) Consequence() string {
	if c := v.Info["Consequence"]; c != "" {
		return c
	}
	for _, key := range []string{"CSQ", "ANN"} {
		val := v.Info[key]
		if val == "" {
			continue
		}
		entry, _, _ := strings.Cut(val, ",")
		parts := strings.Split(entry, "|")
		if len(parts) > 1 {
			return parts[1]
		}
	}
	return ""
}

// Raw converts the record to scoring input on the given assembly.
func (v *Variant) Raw(assembly string) variant.Raw {
	return variant.Raw{
		Chrom:       v.Chrom,
		Pos:         strconv.FormatInt(v.Pos, 10),
		Ref:         v.Ref,
		Alt:         v.Alt,
		Assembly:    assembly,
		Consequence: v.Consequence(),
	}
}
