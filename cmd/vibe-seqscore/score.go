package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-seqscore/internal/output"
	"github.com/inodb/vibe-seqscore/internal/score"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// requestFlags are the per-request scoring options shared by score and batch.
type requestFlags struct {
	assembly    string
	model       string
	windows     []int
	ensemble    bool
	deltaOnly   bool
	maxFidelity bool
	format      string
	output      string
}

func (f *requestFlags) register(cmd *cobra.Command, defaultFormat string) {
	fs := cmd.Flags()
	fs.StringVar(&f.assembly, "assembly", variant.GRCh38, "Genome assembly: GRCh37 or GRCh38")
	fs.StringVar(&f.model, "model", "", "Foundation model (default: configured default model)")
	fs.IntSliceVar(&f.windows, "window", nil, "Context window flank in bp, repeatable (default: configured windows)")
	fs.BoolVar(&f.ensemble, "ensemble", false, "Aggregate across all configured models")
	fs.BoolVar(&f.deltaOnly, "delta-only", false, "Probe the forward strand only")
	fs.BoolVar(&f.maxFidelity, "max-fidelity", false, "Confirm fused/foundation results with the oracle")
	fs.StringVarP(&f.format, "output-format", "f", defaultFormat, "Output format: json, tab")
	fs.StringVarP(&f.output, "output", "o", "", "Output file (default: stdout)")
}

// request builds a ScoreRequest for v from the flags.
func (f *requestFlags) request(v variant.Variant) score.Request {
	return score.Request{
		Variant:      v,
		ModelID:      f.model,
		WindowFlanks: f.windows,
		Ensemble:     f.ensemble,
		DeltaOnly:    f.deltaOnly,
		MaxFidelity:  f.maxFidelity,
	}
}

func newScoreCmd(c *cli) *cobra.Command {
	var (
		flags       requestFlags
		consequence string
	)

	cmd := &cobra.Command{
		Use:   "score <variant>",
		Short: "Score a single variant",
		Long: `Score a single variant given as chrom:pos:ref:alt (also chrom-pos-ref-alt or
chrom:pos:ref>alt). The result is always produced: when every engine fails the
score is a zero placeholder and the reasons explain why.`,
		Example: `  vibe-seqscore score 7:140453136:A:T
  vibe-seqscore score --consequence missense_variant chr7:140453136:A>T
  vibe-seqscore score --window 8192 --window 16384 --ensemble 12:25245350:C:T`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := variant.Parse(args[0], flags.assembly)
			if err != nil {
				return err
			}
			v.Consequence = consequence

			a, err := c.service()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.svc.Score(cmd.Context(), flags.request(v))
			if err != nil {
				return fmt.Errorf("scoring %s: %w", v, err)
			}

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
			if err := w.Write("", res); err != nil {
				return fmt.Errorf("writing score: %w", err)
			}
			return w.Flush()
		},
	}

	flags.register(cmd, "json")
	cmd.Flags().StringVar(&consequence, "consequence", "", "Consequence term hint, e.g. missense_variant")
	return cmd
}
