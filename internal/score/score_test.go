package score

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

func TestClassifyImpactLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  ImpactLevel
	}{
		{0, ImpactNone},
		{0.049, ImpactNone},
		{0.05, ImpactLow},
		{0.19, ImpactLow},
		{0.2, ImpactModerate},
		{0.5, ImpactHigh},
		{0.89, ImpactHigh},
		{0.9, ImpactMassive},
		{1, ImpactMassive},
		{math.NaN(), ImpactNone},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyImpactLevel(tt.score))
			assert.Equal(t, tt.want, ClassifyImpactLevel(tt.score), "deterministic")
		})
	}
}

func TestClassifyImpactLevel_Monotonic(t *testing.T) {
	rank := map[ImpactLevel]int{ImpactNone: 0, ImpactLow: 1, ImpactModerate: 2, ImpactHigh: 3, ImpactMassive: 4}
	prev := 0
	for i := 0; i <= 1000; i++ {
		r := rank[ClassifyImpactLevel(float64(i)/1000)]
		require.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestAmbiguous(t *testing.T) {
	assert.True(t, Ambiguous(0.51, 0.02))
	assert.True(t, Ambiguous(0.19, 0.02))
	assert.False(t, Ambiguous(0.7, 0.02))
	assert.False(t, Ambiguous(0.51, 0))
}

func TestDisruption(t *testing.T) {
	assert.InDelta(t, 0.3, Disruption(-0.3, 1), 1e-12)
	assert.Equal(t, 1.0, Disruption(-15, 1))
	assert.InDelta(t, 0.5, Disruption(-5, 10), 1e-12)
	assert.Equal(t, 0.0, Disruption(math.NaN(), 1))
	assert.InDelta(t, 0.25, Disruption(0.25, 0), 1e-12, "non-positive scale defaults to 1")
}

func TestPercentileLike(t *testing.T) {
	p, cal := PercentileLike(0.37, nil)
	assert.Equal(t, 0.37, p, "identity without reference")
	assert.Equal(t, CalibrationUncalibrated, cal)

	ref := NewReference([]float64{0.4, 0.1, 0.3, 0.2})
	p, cal = PercentileLike(0.25, ref)
	assert.Equal(t, CalibrationEmpirical, cal)
	assert.InDelta(t, 0.5, p, 1e-12)

	p, _ = PercentileLike(0.0, ref)
	assert.Equal(t, 0.0, p)
	p, _ = PercentileLike(0.9, ref)
	assert.Equal(t, 1.0, p)
}

func TestLoadReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reference.csv")
	require.NoError(t, os.WriteFile(path, []byte("score\n0.1\n0.5\n0.3\nnot-a-number\n0.9\n"), 0644))

	ref, err := LoadReference(path)
	require.NoError(t, err)
	assert.Equal(t, 4, ref.Len())

	p, _ := PercentileLike(0.5, ref)
	assert.InDelta(t, 0.75, p, 1e-12)

	_, err = LoadReference(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestResultKey_Deterministic(t *testing.T) {
	v := variant.Variant{Chrom: "7", Pos: 140453136, Ref: "T", Alt: "A", Assembly: variant.GRCh38}
	a := Request{Variant: v, WindowFlanks: []int{8192, 4096, 8192}}.Normalized()
	b := Request{Variant: v, WindowFlanks: []int{4096, 8192}}.Normalized()

	ka := ResultKey(a, []string{"evo2_1b"}, a.WindowFlanks, "")
	kb := ResultKey(b, []string{"evo2_1b"}, b.WindowFlanks, "")
	assert.Equal(t, ka, kb)
	assert.Equal(t, "seqscore:v1:GRCh38:7:140453136:T>A:evo2_1b:4096,8192:d0:x0", ka)

	c := Request{Variant: v, DeltaOnly: true}
	assert.NotEqual(t, ka, ResultKey(c, []string{"evo2_1b"}, []int{4096, 8192}, ""))
}

func TestRequest_NormalizedDropsNonPositiveFlanks(t *testing.T) {
	r := Request{WindowFlanks: []int{8192, 0, -4096, 4096}}.Normalized()
	assert.Equal(t, []int{4096, 8192}, r.WindowFlanks)

	r = Request{WindowFlanks: []int{0, -1}}.Normalized()
	assert.Empty(t, r.WindowFlanks)
}

func TestEngineKeys(t *testing.T) {
	v := variant.Variant{Chrom: "7", Pos: 140453136, Ref: "T", Alt: "A", Assembly: variant.GRCh38}
	assert.Equal(t, "evo2:evo2_1b:GRCh38:7:140453136:T>A:8192", EvoKey("evo2_1b", v, 8192, false))
	assert.Equal(t, "evo2:evo2_1b:GRCh38:7:140453136:T>A:8192:rev", EvoKey("evo2_1b", v, 8192, true))
	assert.Equal(t, "fusion:am:GRCh38:7:140453136:T>A", FusionKey(v))

	hg19 := v
	hg19.Assembly = variant.GRCh37
	assert.NotEqual(t, EvoKey("evo2_1b", v, 8192, false), EvoKey("evo2_1b", hg19, 8192, false))
	assert.NotEqual(t, FusionKey(v), FusionKey(hg19))
}

func TestSeqScore_NullsNotOmitted(t *testing.T) {
	v := variant.Variant{Chrom: "7", Pos: 1, Ref: "A", Alt: "T", Assembly: variant.GRCh38}
	s := Degraded(v, ModePlaceholder, NewStrategy())

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, field := range []string{"min_delta", "exon_delta", "calibrated_seq_percentile", "best_model", "best_window_bp", "forward_reverse_meta"} {
		val, ok := m[field]
		assert.True(t, ok, "field %s present", field)
		assert.Nil(t, val, "field %s null", field)
	}
	assert.Equal(t, "no_impact", m["impact_level"])
	assert.False(t, s.Cacheable())
}
