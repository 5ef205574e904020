package exchange

import (
	"bytes"
	"fmt"
	"strconv"
)

// flexFloat decodes JSON numbers that exchanges serve inconsistently as
// either numeric literals or quoted strings. Empty strings and null decode
// to zero.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("parsing %q as number: %w", data, err)
	}
	*f = flexFloat(v)
	return nil
}

func (f flexFloat) value() float64 {
	return float64(f)
}
