package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-seqscore/internal/config"
	"github.com/inodb/vibe-seqscore/internal/datasource/alphamissense"
	"github.com/inodb/vibe-seqscore/internal/variant"
)

// AlphaMissense release files (Cheng et al., Science 2023, CC BY 4.0).
const alphaMissenseBaseURL = "https://storage.googleapis.com/dm_alphamissense"

// alphaMissenseURL returns the precomputed missense score file for assembly.
func alphaMissenseURL(assembly string) string {
	if variant.NormalizeAssembly(assembly) == variant.GRCh37 {
		return alphaMissenseBaseURL + "/AlphaMissense_hg19.tsv.gz"
	}
	return alphaMissenseBaseURL + "/AlphaMissense_hg38.tsv.gz"
}

// defaultDataDir returns ~/.vibe-seqscore, where downloads are kept.
func defaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, config.FileName), nil
}

func newDownloadCmd(c *cli) *cobra.Command {
	var (
		assembly  string
		outputDir string
		url       string
		dbPath    string
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download AlphaMissense scores for the offline fusion fallback",
		Long: `Download the AlphaMissense precomputed missense scores and load them into a
DuckDB database. Point fusion.alphamissense_db at the database to score missense
SNVs locally when the fused missense-effect service is unavailable.`,
		Example: `  vibe-seqscore download
  vibe-seqscore download --assembly GRCh37 --output /data/seqscore
  vibe-seqscore config set fusion.alphamissense_db ~/.vibe-seqscore/grch38/alphamissense.duckdb`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if outputDir == "" {
				var err error
				if outputDir, err = defaultDataDir(); err != nil {
					return err
				}
			}
			destDir := filepath.Join(outputDir, strings.ToLower(variant.NormalizeAssembly(assembly)))
			if err := os.MkdirAll(destDir, 0755); err != nil {
				return fmt.Errorf("cannot create directory %s: %w", destDir, err)
			}
			if url == "" {
				url = alphaMissenseURL(assembly)
			}
			if dbPath == "" {
				dbPath = filepath.Join(destDir, "alphamissense.duckdb")
			}

			fmt.Fprintf(out, "Downloading AlphaMissense scores for %s...\n", variant.NormalizeAssembly(assembly))
			fmt.Fprintf(out, "Destination: %s\n\n", destDir)

			tsvPath := filepath.Join(destDir, filepath.Base(url))
			if err := downloadFile(out, url, tsvPath); err != nil {
				return fmt.Errorf("downloading AlphaMissense: %w", err)
			}

			store, err := alphamissense.Open(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			start := time.Now()
			n, err := store.Load(tsvPath)
			if err != nil {
				return err
			}
			c.logger.Info("alphamissense loaded",
				zap.Int64("rows", n),
				zap.String("db", dbPath),
				zap.Duration("elapsed", time.Since(start)))

			fmt.Fprintf(out, "\nLoaded %d scores into %s\n", n, dbPath)
			fmt.Fprintf(out, "To use them as the local fusion fallback, run:\n")
			fmt.Fprintf(out, "  vibe-seqscore config set %s %s\n", config.KeyFusionAMDB, dbPath)
			return nil
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&assembly, "assembly", variant.GRCh38, "Genome assembly: GRCh37 or GRCh38")
	fs.StringVar(&outputDir, "output", "", "Output directory (default: ~/.vibe-seqscore/)")
	fs.StringVar(&url, "url", "", "Override the AlphaMissense download URL")
	fs.StringVar(&dbPath, "db", "", "DuckDB database to load (default: <output>/<assembly>/alphamissense.duckdb)")
	return cmd
}

// downloadFile downloads url to destPath, reporting progress to out. An
// existing destination is kept.
func downloadFile(out io.Writer, url, destPath string) error {
	if info, err := os.Stat(destPath); err == nil {
		fmt.Fprintf(out, "  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Fprintf(out, "  Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{
		Timeout: 30 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	pw := &progressWriter{out: out, total: resp.ContentLength, lastPrint: time.Now()}
	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(out, "    Done: %s\n", formatSize(pw.downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	out        io.Writer
	total      int64
	downloaded int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.downloaded += int64(n)

	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(pw.downloaded) / float64(pw.total) * 100
			fmt.Fprintf(pw.out, "\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Fprintf(pw.out, "\r    Progress: %s  ", formatSize(pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
