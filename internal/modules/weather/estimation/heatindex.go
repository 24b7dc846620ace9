package estimation

const heatIndexThreshold = 20.0

const (
	c1 = -8.78469475556
	c2 = 1.61139411
	c3 = 2.33854883889
	c4 = -0.14611605
	c5 = -0.012308094
	c6 = -0.0164248277778
	c7 = 0.002211732
	c8 = 0.00072546
	c9 = -0.000003582
)

// HeatIndex returns the apparent temperature in °C for air temperature t (°C)
// and relative humidity h (%). Below 20 °C the regression does not apply and
// t is returned unchanged.
func HeatIndex(t, h float64) float64 {
	if t < heatIndexThreshold {
		return t
	}
	return c1 +
		c2*t +
		c3*h +
		c4*t*h +
		c5*t*t +
		c6*h*h +
		c7*t*t*h +
		c8*t*h*h +
		c9*t*t*h*h
}
