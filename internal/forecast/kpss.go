package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// kpssCritical holds the level-stationarity critical values of
// Kwiatkowski et al. (1992), keyed by significance level.
var kpssCritical = map[float64]float64{
	0.10:  0.347,
	0.05:  0.463,
	0.025: 0.574,
	0.01:  0.739,
}

// KPSS returns the KPSS level-stationarity statistic of x using a Bartlett
// long-run variance with trunc(4*(n/100)^0.25) lags.
func KPSS(x []float64) float64 {
	n := len(x)
	if n < 2 {
		return 0
	}

	mean := stat.Mean(x, nil)
	e := make([]float64, n)
	for i, v := range x {
		e[i] = v - mean
	}

	var partial, eta float64
	for _, v := range e {
		partial += v
		eta += partial * partial
	}
	eta /= float64(n) * float64(n)

	lags := int(4 * math.Pow(float64(n)/100, 0.25))
	s2 := floats.Dot(e, e) / float64(n)
	for l := 1; l <= lags && l < n; l++ {
		w := 1 - float64(l)/float64(lags+1)
		s2 += 2 * w * floats.Dot(e[l:], e[:n-l]) / float64(n)
	}
	if s2 <= 0 {
		return 0
	}
	return eta / s2
}

// Stationary reports whether the KPSS test fails to reject level
// stationarity of x at significance alpha (0.01, 0.025, 0.05 or 0.1).
func Stationary(x []float64, alpha float64) (bool, error) {
	crit, ok := kpssCritical[alpha]
	if !ok {
		return false, fmt.Errorf("unsupported KPSS significance level %v", alpha)
	}
	return KPSS(x) <= crit, nil
}

// NDiffs returns the number of first differences, at most maxD, needed for
// x to pass the KPSS level test. Differencing stops early once the series
// becomes constant.
func NDiffs(x []float64, alpha float64, maxD int) (int, error) {
	if isConstant(x) {
		return 0, nil
	}
	ok, err := Stationary(x, alpha)
	if err != nil {
		return 0, err
	}

	d := 0
	for !ok && d < maxD {
		d++
		x = Difference(x, 1)
		if isConstant(x) {
			return d, nil
		}
		if ok, err = Stationary(x, alpha); err != nil {
			return 0, err
		}
	}
	return d, nil
}

// Difference applies the first-difference operator d times.
func Difference(x []float64, d int) []float64 {
	out := append([]float64(nil), x...)
	for ; d > 0 && len(out) > 0; d-- {
		for i := 0; i < len(out)-1; i++ {
			out[i] = out[i+1] - out[i]
		}
		out = out[:len(out)-1]
	}
	return out
}

func isConstant(x []float64) bool {
	if len(x) == 0 {
		return true
	}
	return floats.Max(x) == floats.Min(x)
}
