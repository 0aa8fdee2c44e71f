package main

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-seqscore/internal/config"
	"github.com/inodb/vibe-seqscore/internal/datasource/alphamissense"
)

// evoServer fakes the foundation-model service with a fixed delta per strand.
func evoServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/score_variant_multi" {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		var req struct {
			Pos int64 `json:"pos"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		delta := -0.3
		if req.Pos == 7674220 {
			delta = -0.8
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]float64{"min_delta": delta, "exon_delta": delta / 2})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seqscore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func foundationConfig(t *testing.T, url string) string {
	return writeConfig(t, `
foundation:
  url: `+url+`
  windows: [8192]
oracle:
  enabled: false
`)
}

func TestScoreCmd_FoundationModel(t *testing.T) {
	var calls atomic.Int32
	srv := evoServer(t, &calls)
	cfg := foundationConfig(t, srv.URL)

	out, err := execute(t, "--config", cfg, "score", "chr7:140453136:T>A")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "foundation_model", res["scoring_mode"])
	assert.InDelta(t, 0.3, res["sequence_disruption"], 1e-9)
	assert.Equal(t, "moderate", res["impact_level"])
	assert.Equal(t, "evo2_1b", res["best_model"])
	assert.EqualValues(t, 8192, res["best_window_bp"])

	strategy := res["scoring_strategy"].(map[string]any)
	assert.Equal(t, "foundation_model", strategy["succeeded"])
	assert.Equal(t, "not_applicable", strategy["reasons"].(map[string]any)["fusion"])

	assert.EqualValues(t, 2, calls.Load(), "forward and reverse pass for one window")
}

func TestScoreCmd_DeltaOnlyTabOutput(t *testing.T) {
	var calls atomic.Int32
	srv := evoServer(t, &calls)
	cfg := foundationConfig(t, srv.URL)

	out, err := execute(t, "--config", cfg, "score", "--delta-only", "-f", "tab", "7-140453136-T-A")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "#Uploaded_variation"))
	assert.Contains(t, lines[1], "foundation_model")
	assert.EqualValues(t, 1, calls.Load())
}

func TestScoreCmd_PlaceholderWithoutBackends(t *testing.T) {
	cfg := writeConfig(t, "oracle:\n  enabled: false\n")

	out, err := execute(t, "--config", cfg, "score", "1:100:A:G")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "placeholder", res["scoring_mode"])
	assert.EqualValues(t, 0, res["sequence_disruption"])
	assert.Nil(t, res["min_delta"])
}

func TestScoreCmd_InvalidVariant(t *testing.T) {
	cfg := writeConfig(t, "")
	_, err := execute(t, "--config", cfg, "score", "7:abc:T:A")
	assert.ErrorContains(t, err, "pos")
}

func TestScoreCmd_InvalidConfig(t *testing.T) {
	cfg := writeConfig(t, "oracle:\n  mode: fast\n")
	_, err := execute(t, "--config", cfg, "score", "7:140453136:T:A")
	assert.ErrorContains(t, err, "invalid configuration")
}

const batchVCF = `##fileformat=VCFv4.2
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
chr7	140453136	rs113488022	T	A	.	PASS	.
chr1	notanumber	.	A	G	.	PASS	.
chr17	7674220	rs28934578	C	T	.	PASS	.
chr2	200	.	G	*,C	.	PASS	.
`

func TestBatchCmd_ScoresInInputOrder(t *testing.T) {
	var calls atomic.Int32
	srv := evoServer(t, &calls)
	cfg := foundationConfig(t, srv.URL)

	in := filepath.Join(t.TempDir(), "input.vcf")
	require.NoError(t, os.WriteFile(in, []byte(batchVCF), 0644))
	outPath := filepath.Join(t.TempDir(), "scores.tsv")

	_, err := execute(t, "--config", cfg, "batch", "-j", "4", "-o", outPath, in)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4, "header plus three scoreable alleles")

	rows := make([][]string, 0, 3)
	for _, l := range lines[1:] {
		rows = append(rows, strings.Split(l, "\t"))
	}
	assert.Equal(t, "rs113488022", rows[0][0])
	assert.Equal(t, "rs28934578", rows[1][0])
	assert.Equal(t, "high", rows[1][5])
	assert.Equal(t, "2:200", rows[2][1])
	assert.Equal(t, "G>C", rows[2][2])
}

const batchMAF = "#version 2.4\n" +
	"Hugo_Symbol\tNCBI_Build\tChromosome\tStart_Position\tVariant_Classification\tReference_Allele\tTumor_Seq_Allele1\tTumor_Seq_Allele2\tHGVSp_Short\n" +
	"BRAF\tGRCh37\t7\t140453136\tMissense_Mutation\tA\tA\tT\tp.V600E\n" +
	"EGFR\tGRCh37\t7\t55242465\tIn_Frame_Del\tGGAATTAAGAGAAGC\tGGAATTAAGAGAAGC\t-\tp.E746_A750del\n" +
	"TP53\tGRCh38\t17\t7674220\tMissense_Mutation\tC\tC\tT\tp.R248Q\n"

func TestBatchCmd_ReadsMAF(t *testing.T) {
	var calls atomic.Int32
	srv := evoServer(t, &calls)
	cfg := foundationConfig(t, srv.URL)

	in := filepath.Join(t.TempDir(), "data_mutations.maf")
	require.NoError(t, os.WriteFile(in, []byte(batchMAF), 0644))
	outPath := filepath.Join(t.TempDir(), "scores.tsv")

	_, err := execute(t, "--config", cfg, "batch", "-o", outPath, in)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3, "header plus two scoreable rows")

	braf := strings.Split(lines[1], "\t")
	tp53 := strings.Split(lines[2], "\t")
	assert.Equal(t, "BRAF:p.V600E", braf[0])
	assert.Equal(t, "7:140453136", braf[1])
	assert.Equal(t, "GRCh37", braf[3], "assembly taken from NCBI_Build")
	assert.Equal(t, "TP53:p.R248Q", tp53[0])
	assert.Equal(t, "GRCh38", tp53[3])
	assert.Equal(t, "high", tp53[5])
}

func TestIsMAF(t *testing.T) {
	assert.True(t, isMAF("data_mutations.maf"))
	assert.True(t, isMAF("/data/study.MAF.gz"))
	assert.False(t, isMAF("input.vcf.gz"))
	assert.False(t, isMAF("-"))
}

func TestConfigCmd_SetThenGet(t *testing.T) {
	cfg := writeConfig(t, "")

	out, err := execute(t, "--config", cfg, "config", "set", "oracle.mode", "synthetic")
	require.NoError(t, err)
	assert.Contains(t, out, "Set oracle.mode = synthetic")

	out, err = execute(t, "--config", cfg, "config", "get", "oracle.mode")
	require.NoError(t, err)
	assert.Equal(t, "synthetic\n", out)

	data, err := os.ReadFile(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "max_backend_calls", "defaults are not persisted")

	_, err = execute(t, "--config", cfg, "config", "get", "no.such.key")
	assert.Error(t, err)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"off", false},
		{"8", 8},
		{"0.5", 0.5},
		{"redis://localhost:6379/0", "redis://localhost:6379/0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}

func TestDownloadCmd_LoadsAlphaMissense(t *testing.T) {
	tsv := "# AlphaMissense\n" +
		"#CHROM\tPOS\tREF\tALT\tgenome\tuniprot_id\ttranscript_id\tprotein_variant\tam_pathogenicity\tam_class\n" +
		"chr7\t140753336\tA\tT\thg38\tP15056\tENST00000646891.2\tV600E\t0.9927\tlikely_pathogenic\n" +
		"chr12\t25245350\tC\tA\thg38\tP01116\tENST00000256078.10\tG12V\t0.9958\tlikely_pathogenic\n"
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, err := zw.Write([]byte(tsv))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(gz.Bytes())
	}))
	defer srv.Close()

	cfg := writeConfig(t, "")
	dir := t.TempDir()
	out, err := execute(t, "--config", cfg, "download", "--output", dir, "--url", srv.URL+"/AlphaMissense_hg38.tsv.gz")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 scores")

	dbPath := filepath.Join(dir, "grch38", "alphamissense.duckdb")
	store, err := alphamissense.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestCacheCmd_Purge(t *testing.T) {
	cfg := writeConfig(t, "cache_url: sqlite://"+filepath.Join(t.TempDir(), "cache.db")+"\n")
	out, err := execute(t, "--config", cfg, "cache", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 expired entries")

	cfg = writeConfig(t, "")
	_, err = execute(t, "--config", cfg, "cache", "purge")
	assert.ErrorContains(t, err, "no cache configured")
}

func TestProfileTag(t *testing.T) {
	base := config.Config{AsymmetryLimit: 0.5, DeltaScale: 1, AmbiguityMargin: 0.02, OracleEnabled: true, OracleMode: "real_context"}
	assert.Equal(t, "asym=0.5,scale=1,margin=0.02,oracle=real_context", profileTag(base))

	other := base
	other.OracleEnabled = false
	assert.NotEqual(t, profileTag(base), profileTag(other))
}
