package fibre

import "strconv"

// formatFloat renders a 2-decimal reported concentration the way the result
// sheets show it: always two decimal places.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
