package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/elsanchez/krakguard/internal/domain"
)

// ReadInt lee una propiedad numérica. Los enteros se usan tal cual y los
// strings se parsean; ausente, inválido, negativo o fraccionario da 0.
func ReadInt(asset domain.Asset, alias string) int64 {
	if asset == nil {
		return 0
	}
	v, ok := asset.GetValue(alias)
	if !ok {
		return 0
	}
	return nonNegative(toInt(v))
}

func toInt(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return clampUint(uint64(n))
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return clampUint(n)
	case float64:
		// JSON decodifica números como float64; solo cuentan los enteros
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0
		}
		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}
		return i
	case string:
		return parseInt(n)
	case []byte:
		return parseInt(string(n))
	default:
		return 0
	}
}

func parseInt(s string) int64 {
	i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return i
}

func clampUint(n uint64) int64 {
	if n > math.MaxInt64 {
		return 0
	}
	return int64(n)
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
