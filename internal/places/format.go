package places

import (
	"fmt"
	"math"
)

// FormatDistance renders meters as "1.2 km" from 1000 m upwards and as whole
// meters ("850 m") below that.
func FormatDistance(m float64) string {
	if m >= 1000 {
		return fmt.Sprintf("%.1f km", m/1000)
	}
	return fmt.Sprintf("%d m", int(math.Round(m)))
}
