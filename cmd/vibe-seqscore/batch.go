package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/maf"
	"github.com/inodb/vibe-seqscore/internal/output"
	"github.com/inodb/vibe-seqscore/internal/scorer"
	"github.com/inodb/vibe-seqscore/internal/variant"
	"github.com/inodb/vibe-seqscore/internal/vcf"
)

func newBatchCmd(c *cli) *cobra.Command {
	var (
		flags   requestFlags
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch <input.vcf|input.maf>",
		Short: "Score every variant in a VCF or MAF file",
		Long: `Score every alternate allele in a VCF or every row of a MAF (plain or
gzipped, '-' reads VCF from stdin). Files ending in .maf or .maf.gz are read
as MAF, taking the assembly from NCBI_Build and the consequence from
Variant_Classification. Variants are scored concurrently and written in input
order. Malformed lines are logged and skipped.`,
		Example: `  vibe-seqscore batch input.vcf
  vibe-seqscore batch -f tab -o scores.tsv --workers 16 input.vcf.gz
  vibe-seqscore batch -o scores.tsv data_mutations.maf
  cat input.vcf | vibe-seqscore batch -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openInput(args[0], flags.assembly, c.logger)
			if err != nil {
				return err
			}
			defer in.Close()

			a, err := c.service()
			if err != nil {
				return err
			}
			defer a.Close()

			dst, closeOut, err := openOutput(cmd, flags.output)
			if err != nil {
				return err
			}
			defer closeOut()

			w, err := output.NewWriter(flags.format, dst)
			if err != nil {
				return err
			}
			if err := w.WriteHeader(); err != nil {
				return fmt.Errorf("writing header: %w", err)
			}

			stats, err := scoreInput(cmd.Context(), a.svc, in, flags, workers, w, c.logger)
			if err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("flushing output: %w", err)
			}
			c.logger.Info("batch complete",
				zap.Int("scored", stats.scored),
				zap.Int("invalid", stats.invalid),
				zap.Int("skipped_lines", in.Skipped()))
			return nil
		},
	}

	flags.register(cmd, "tab")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "Concurrent variants (default: number of CPUs)")
	return cmd
}

type batchStats struct {
	scored  int
	invalid int
}

// inputVariant is one variant read from a batch input file.
type inputVariant struct {
	id  string
	raw variant.Raw
}

// batchInput yields the variants of a VCF or MAF file.
type batchInput interface {
	// Next returns the variants of the next record, or nil at end of input.
	Next() ([]inputVariant, error)
	Skipped() int
	Close() error
}

// isMAF reports whether path names a MAF file.
func isMAF(path string) bool {
	name := strings.ToLower(path)
	return strings.HasSuffix(name, ".maf") || strings.HasSuffix(name, ".maf.gz")
}

// openInput opens path as MAF or VCF by its extension. assembly applies to
// VCF records and to MAF rows without NCBI_Build.
func openInput(path, assembly string, logger *zap.Logger) (batchInput, error) {
	if isMAF(path) {
		p, err := maf.NewParser(path)
		if err != nil {
			return nil, err
		}
		return &mafInput{Parser: p, assembly: assembly, logger: logger}, nil
	}
	p, err := vcf.NewParser(path)
	if err != nil {
		return nil, err
	}
	return &vcfInput{Parser: p, assembly: assembly, logger: logger}, nil
}

type vcfInput struct {
	*vcf.Parser
	assembly string
	logger   *zap.Logger
}

func (in *vcfInput) Next() ([]inputVariant, error) {
	alleles, err := in.NextAlleles(func(pe *vcf.ParseError) {
		in.logger.Warn("skipping malformed VCF line", zap.Int("line", pe.Line), zap.String("reason", pe.Message))
	})
	if err != nil || alleles == nil {
		return nil, err
	}
	out := make([]inputVariant, len(alleles))
	for i, v := range alleles {
		out[i] = inputVariant{raw: v.Raw(in.assembly)}
		if v.ID != "." {
			out[i].id = v.ID
		}
	}
	return out, nil
}

type mafInput struct {
	*maf.Parser
	assembly string
	logger   *zap.Logger
}

func (in *mafInput) Next() ([]inputVariant, error) {
	rec, err := in.Parser.Next(func(pe *maf.ParseError) {
		in.logger.Warn("skipping MAF row", zap.Int("line", pe.Line), zap.String("reason", pe.Message))
	})
	if err != nil || rec == nil {
		return nil, err
	}
	raw := rec.Raw
	if raw.Assembly == "" {
		raw.Assembly = in.assembly
	}
	return []inputVariant{{id: rec.ID(), raw: raw}}, nil
}

// scoreInput streams variants from in through the service and writes
// results to w in input order.
func scoreInput(ctx context.Context, svc *scorer.Service, in batchInput, flags requestFlags, workers int, w output.Writer, logger *zap.Logger) (batchStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	items := make(chan scorer.WorkItem, 64)
	readErr := make(chan error, 1)
	go func() {
		defer close(items)
		seq := 0
		for {
			batch, err := in.Next()
			if err != nil {
				readErr <- err
				return
			}
			if batch == nil {
				readErr <- nil
				return
			}
			for _, v := range batch {
				select {
				case items <- scorer.WorkItem{Seq: seq, Raw: v.raw, Extra: v.id}:
					seq++
				case <-ctx.Done():
					readErr <- ctx.Err()
					return
				}
			}
		}
	}()

	var stats batchStats
	results := svc.ParallelScore(ctx, items, flags.request(variant.Variant{}), workers)
	err := scorer.OrderedCollect(results, func(r scorer.WorkResult) error {
		id, _ := r.Extra.(string)
		if r.Err != nil {
			var inv *variant.InvalidVariantError
			if !errors.As(r.Err, &inv) {
				cancel()
				return r.Err
			}
			logger.Warn("skipping invalid variant",
				zap.String("id", id),
				zap.String("chrom", r.Raw.Chrom),
				zap.String("pos", r.Raw.Pos),
				zap.Error(r.Err))
			stats.invalid++
			return nil
		}
		if err := w.Write(id, r.Score); err != nil {
			cancel()
			return fmt.Errorf("writing score: %w", err)
		}
		stats.scored++
		return nil
	})
	if err != nil {
		return stats, err
	}
	if err := <-readErr; err != nil {
		return stats, fmt.Errorf("reading input: %w", err)
	}
	return stats, nil
}
