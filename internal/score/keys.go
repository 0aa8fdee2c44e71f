package score

import (
	"strconv"
	"strings"

	"github.com/inodb/vibe-seqscore/internal/variant"
)

// Cache key schema version for whole-result entries. Bump when SeqScore
// changes shape.
const keyVersion = "v1"

// FusionKey is the cache key for a fused missense backend response.
func FusionKey(v variant.Variant) string {
	return "fusion:am:" + v.Assembly + ":" + v.Key()
}

// EvoKey is the cache key for one forward-strand foundation-model window
// probe. Reverse-strand probes append ":rev".
func EvoKey(model string, v variant.Variant, flankBp int, reverse bool) string {
	k := "evo2:" + model + ":" + v.Assembly + ":" + v.Key() + ":" + strconv.Itoa(flankBp)
	if reverse {
		k += ":rev"
	}
	return k
}

// OracleKey is the cache key for an oracle sequence-context score.
func OracleKey(mode Mode, model string, v variant.Variant, contextBp int) string {
	return "oracle:" + string(mode) + ":" + model + ":" + v.Assembly + ":" + v.Key() + ":" + strconv.Itoa(contextBp)
}

// ResultKey is the cache key for a whole SeqScore. models and flanks must be
// the effective (resolved) values, and profile identifies service settings
// that change the result (e.g. disabled paths).
func ResultKey(r Request, models []string, flanks []int, profile string) string {
	var sb strings.Builder
	sb.WriteString("seqscore:")
	sb.WriteString(keyVersion)
	sb.WriteByte(':')
	sb.WriteString(r.Variant.Assembly)
	sb.WriteByte(':')
	sb.WriteString(r.Variant.Key())
	sb.WriteByte(':')
	sb.WriteString(strings.Join(models, ","))
	sb.WriteByte(':')
	for i, f := range flanks {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(f))
	}
	sb.WriteString(":d")
	sb.WriteString(flag(r.DeltaOnly))
	sb.WriteString(":x")
	sb.WriteString(flag(r.MaxFidelity))
	if c := strings.ToLower(r.Variant.Consequence); c != "" {
		sb.WriteString(":c=")
		sb.WriteString(c)
	}
	if profile != "" {
		sb.WriteByte(':')
		sb.WriteString(profile)
	}
	return sb.String()
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
