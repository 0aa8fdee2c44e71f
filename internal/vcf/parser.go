package vcf

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parser reads variants from a VCF file.
type Parser struct {
	reader     *bufio.Reader
	closers    []io.Closer
	lineNumber int
	header     []string
	skipped    int
}

// NewParser opens a VCF file, plain or gzipped (BGZF included). A path of
// "-" reads standard input.
func NewParser(path string) (*Parser, error) {
	if path == "-" {
		return NewParserFromReader(os.Stdin)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}
	p, err := newParser(file)
	if err != nil {
		file.Close()
		return nil, err
	}
	p.closers = append(p.closers, file)
	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., stdin).
// Gzipped input is detected from its magic bytes.
func NewParserFromReader(r io.Reader) (*Parser, error) {
	return newParser(r)
}

func newParser(r io.Reader) (*Parser, error) {
	br := bufio.NewReader(r)
	p := &Parser{reader: br}

	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read vcf header: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
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

// readLine returns the next line without its terminator. ok is false at end
// of input; a final line lacking a newline is still returned.
func (p *Parser) readLine() (line string, ok bool, err error) {
	line, err = p.reader.ReadString('\n')
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

// parseHeader consumes the ## meta lines and the #CHROM column line.
func (p *Parser) parseHeader() error {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if !ok {
			return &ParseError{Line: p.lineNumber, Message: "no #CHROM header line found"}
		}
		switch {
		case strings.HasPrefix(line, "##"):
			p.header = append(p.header, line)
		case strings.HasPrefix(line, "#CHROM"):
			p.header = append(p.header, line)
			return nil
		default:
			return &ParseError{Line: p.lineNumber, Message: "expected #CHROM header line"}
		}
	}
}

// Next reads the next variant record, alternate alleles unsplit.
// Returns nil, nil when there are no more variants.
func (p *Parser) Next() (*Variant, error) {
	for {
		line, ok, err := p.readLine()
		if err != nil {
			return nil, fmt.Errorf("read variant line: %w", err)
		}
		if !ok {
			return nil, nil
		}
		if line != "" {
			return p.parseLine(line)
		}
	}
}

// parseLine parses the eight fixed VCF columns; sample columns are ignored.
func (p *Parser) parseLine(line string) (*Variant, error) {
	fields := strings.SplitN(line, "\t", 9)
	if len(fields) < 8 {
		return nil, p.errorf("expected at least 8 columns, found %d", len(fields))
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, p.errorf("invalid position: %s", fields[1])
	}
	if fields[3] == "" || fields[3] == "." {
		return nil, p.errorf("missing REF allele")
	}

	var qual float64
	if fields[5] != "." {
		qual, _ = strconv.ParseFloat(fields[5], 64)
	}

	return &Variant{
		Chrom:  fields[0],
		Pos:    pos,
		ID:     fields[2],
		Ref:    fields[3],
		Alt:    fields[4],
		Qual:   qual,
		Filter: fields[6],
		Info:   parseInfo(fields[7]),
	}, nil
}

func (p *Parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Line: p.lineNumber, Message: fmt.Sprintf(format, args...)}
}

// parseInfo parses the INFO column. Flags map to the empty string.
func parseInfo(info string) map[string]string {
	result := make(map[string]string)
	if info == "." || info == "" {
		return result
	}
	for _, kv := range strings.Split(info, ";") {
		k, v, _ := strings.Cut(kv, "=")
		result[k] = v
	}
	return result
}

// SplitMultiAllelic returns one variant per scoreable alternate allele.
// Spanning deletions ("*") and missing alleles (".") are dropped.
func SplitMultiAllelic(v *Variant) []*Variant {
	alts := strings.Split(v.Alt, ",")
	variants := make([]*Variant, 0, len(alts))
	for _, alt := range alts {
		if unscoreable(alt) {
			continue
		}
		if len(alts) == 1 {
			return []*Variant{v}
		}
		split := *v
		split.Alt = alt
		variants = append(variants, &split)
	}
	return variants
}

func unscoreable(alt string) bool {
	return alt == "*" || alt == "." || alt == ""
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// NextAlleles reads the next data line and returns its alternate alleles
// as separate variants. Malformed lines are counted, passed to onSkip (if
// non-nil) and skipped. Returns nil, nil at end of input.
func (p *Parser) NextAlleles(onSkip func(*ParseError)) ([]*Variant, error) {
	for {
		v, err := p.Next()
		var pe *ParseError
		if errors.As(err, &pe) {
			p.skipped++
			if onSkip != nil {
				onSkip(pe)
			}
			continue
		}
		if err != nil || v == nil {
			return nil, err
		}
		if alleles := SplitMultiAllelic(v); len(alleles) > 0 {
			return alleles, nil
		}
	}
}

// Skipped returns the number of malformed lines skipped by NextAlleles.
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

// ParseError represents an error during VCF parsing with line context.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("vcf parse error at line %d: %s", e.Line, e.Message)
}
