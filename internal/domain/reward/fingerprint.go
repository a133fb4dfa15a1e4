package reward

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/okian/critic/internal/domain/aggregate"
	"github.com/okian/critic/internal/domain/normalize"
)

// fingerprintLen bounds the hex identifier carried on every diagnostic.
const fingerprintLen = 16

// Fingerprint derives a stable identifier from the exact strategy
// parameters, so diagnostics can be grouped by the configuration that
// produced them. The hash covers the strategy names and every numeric
// knob they expose.
func Fingerprint(agg aggregate.Aggregator, norm normalize.Normalizer) string {
	parts := []string{agg.Name()}
	if d, ok := agg.(*aggregate.Discounted); ok {
		parts = append(parts, formatParam(d.Rate()))
	}

	parts = append(parts, norm.Name())
	switch n := norm.(type) {
	case *normalize.Adaptive:
		lo, hi := n.ClipRange()
		parts = append(parts, strconv.Itoa(n.WindowSize()), formatParam(lo), formatParam(hi))
	case *normalize.Clip:
		lo, hi := n.ClipRange()
		parts = append(parts, formatParam(lo), formatParam(hi))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
