package persist

import (
	"math"
	"reflect"

	"github.com/worldstream/engine/internal/world"
)

// DiffProperties returns the properties whose live value differs from the
// type's default baseline. Floats compare within an epsilon so snapshot
// round-trip precision loss does not turn defaults into diffs.
func DiffProperties(live, baseline map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, v := range live {
		base, ok := baseline[k]
		if !ok || !valueEqual(v, base) {
			diff[k] = v
		}
	}
	return diff
}

func valueEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && math.Abs(af-bf) < world.Epsilon
	}
	switch at := a.(type) {
	case string:
		bt, ok := b.(string)
		return ok && at == bt
	case bool:
		bt, ok := b.(bool)
		return ok && at == bt
	case []any:
		bt, ok := b.([]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for i := range at {
			if !valueEqual(at[i], bt[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, av := range at {
			bv, has := bt[k]
			if !has || !valueEqual(av, bv) {
				return false
			}
		}
		return true
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}

// asFloat normalizes the numeric types YAML and JSON decoders produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
