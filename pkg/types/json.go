package types

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func marshalFloatArray(vals []float64) ([]byte, error) {
	return json.Marshal(vals)
}

func unmarshalFloatArray(data []byte, n int) ([]float64, error) {
	var vals []float64
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, err
	}
	if len(vals) != n {
		return nil, fmt.Errorf("types: expected %d-element array, got %d", n, len(vals))
	}
	return vals, nil
}

// boxKey renders a box rounded to 4 decimals so equivalent boxes produce
// identical cache keys.
func boxKey(b BBoxNorm) string {
	round4 := func(v float64) string {
		return strconv.FormatFloat(roundTo(v, 4), 'f', 4, 64)
	}
	return "(" + round4(b[0]) + "," + round4(b[1]) + "," + round4(b[2]) + "," + round4(b[3]) + ")"
}

func roundTo(v float64, decimals int) float64 {
	mult := 1.0
	for i := 0; i < decimals; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+sign(v)*0.5)) / mult
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
