package timing

import (
	"encoding/json"
	"math"
	"strconv"
)

// NotAvailableText is what a missing value renders as, in text and in JSON
const NotAvailableText = "N/A"

// Cell is a number that may be missing. Renderers branch on Valid: a missing
// cell is shown as NotAvailableText, never as zero.
type Cell struct {
	Value float64
	Valid bool
}

// NotAvailable is the sentinel cell
var NotAvailable = Cell{}

// Num wraps a known value
func Num(v float64) Cell {
	return Cell{Value: v, Valid: true}
}

func cellOf(v *float64) Cell {
	if v == nil {
		return NotAvailable
	}
	return Num(*v)
}

// delta is later - earlier rounded to milliseconds, or the sentinel if either is missing
func delta(later, earlier *float64) Cell {
	if later == nil || earlier == nil {
		return NotAvailable
	}
	return Num(round3(*later - *earlier))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func (c Cell) String() string {
	if !c.Valid {
		return NotAvailableText
	}
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.Valid {
		return json.Marshal(NotAvailableText)
	}
	return json.Marshal(c.Value)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if f, ok := v.(float64); ok {
		*c = Num(f)
		return nil
	}
	*c = NotAvailable
	return nil
}
