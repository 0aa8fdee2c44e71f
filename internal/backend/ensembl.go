package backend

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Ensembl REST hosts per assembly.
const (
	ensemblGRCh38URL = "https://rest.ensembl.org"
	ensemblGRCh37URL = "https://grch37.rest.ensembl.org"
)

// EnsemblClient retrieves genomic reference sequence from an Ensembl-style
// REST API.
type EnsemblClient struct {
	grch38 restClient
	grch37 restClient
}

// NewEnsemblClient creates a sequence client. An empty baseURL uses the
// public Ensembl hosts (the grch37 mirror for GRCh37); a custom baseURL is
// used for both assemblies.
func NewEnsemblClient(baseURL string, timeout time.Duration) *EnsemblClient {
	b38, b37 := ensemblGRCh38URL, ensemblGRCh37URL
	if baseURL != "" {
		b38, b37 = baseURL, baseURL
	}
	return &EnsemblClient{
		grch38: newRESTClient("ensembl", b38, timeout),
		grch37: newRESTClient("ensembl", b37, timeout),
	}
}

// SetLogger sets the logger for retry diagnostics.
func (c *EnsemblClient) SetLogger(l *zap.Logger) {
	c.grch38.logger = l
	c.grch37.logger = l
}

// FetchRegion returns the forward-strand reference sequence for the
// 1-based inclusive region chrom:start..end, upper-cased.
func (c *EnsemblClient) FetchRegion(ctx context.Context, assembly, chrom string, start, end int64) (string, error) {
	if start < 1 {
		start = 1
	}
	if end < start {
		return "", fmt.Errorf("invalid region %s:%d..%d", chrom, start, end)
	}

	rc := c.grch38
	if assembly == "GRCh37" {
		rc = c.grch37
	}

	path := fmt.Sprintf("/sequence/region/human/%s:%d..%d:1?content-type=application/json",
		url.PathEscape(chrom), start, end)

	var out struct {
		Seq string `json:"seq"`
	}
	if err := rc.getJSON(ctx, path, &out); err != nil {
		return "", err
	}
	if want := int(end - start + 1); len(out.Seq) != want {
		return "", fmt.Errorf("ensembl region %s:%d..%d: got %d bases, want %d", chrom, start, end, len(out.Seq), want)
	}
	return strings.ToUpper(out.Seq), nil
}
