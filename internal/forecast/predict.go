package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Bound is a prediction interval at a confidence level in percent
type Bound struct {
	Level int
	Lower float64
	Upper float64
}

// Point is a forecast for one step ahead
type Point struct {
	Step   int
	Mean   float64
	StdErr float64
	Bounds []Bound
}

// Forecast projects the model h steps past the end of the series. Intervals
// are mean +- z*sqrt(sigma2 * sum(psi_j^2)) where psi are the MA(inf) weights
// of the integrated model, so their width never shrinks with the horizon.
func (m *Model) Forecast(h int, levels []int) ([]Point, error) {
	if h < 1 {
		return nil, fmt.Errorf("forecast horizon must be positive, got %d", h)
	}
	z := make([]float64, len(levels))
	for i, l := range levels {
		if l <= 0 || l >= 100 {
			return nil, fmt.Errorf("confidence level %d outside (0, 100)", l)
		}
		z[i] = distuv.UnitNormal.Quantile(0.5 + float64(l)/200)
	}

	means := m.pointForecast(h)
	psi := m.psiWeights(h)

	points := make([]Point, h)
	var cum float64
	for i := 0; i < h; i++ {
		cum += psi[i] * psi[i]
		se := math.Sqrt(m.Sigma2 * cum)
		p := Point{Step: i + 1, Mean: means[i], StdErr: se, Bounds: make([]Bound, len(levels))}
		for j, l := range levels {
			p.Bounds[j] = Bound{Level: l, Lower: means[i] - z[j]*se, Upper: means[i] + z[j]*se}
		}
		points[i] = p
	}
	return points, nil
}

// pointForecast forecasts the differenced series recursively and integrates
// the result back to the original scale.
func (m *Model) pointForecast(h int) []float64 {
	d := m.Order.D

	// levels[k] is the series differenced k times
	levels := make([][]float64, d+1)
	levels[0] = m.y
	for k := 1; k <= d; k++ {
		levels[k] = Difference(levels[k-1], 1)
	}
	w := levels[d]
	n := len(w)

	z := make([]float64, n+h)
	for i, v := range w {
		z[i] = v - m.Constant
	}
	e := make([]float64, n+h)
	copy(e, m.resid)

	wf := make([]float64, h)
	for i := 0; i < h; i++ {
		t := n + i
		var v float64
		for k, phi := range m.AR {
			if t-k-1 >= 0 {
				v += phi * z[t-k-1]
			}
		}
		for j, theta := range m.MA {
			if t-j-1 >= 0 {
				v += theta * e[t-j-1]
			}
		}
		z[t] = v
		wf[i] = v + m.Constant
	}

	// integrate from the d-th difference back to the level
	f := wf
	for k := d - 1; k >= 0; k-- {
		last := levels[k][len(levels[k])-1]
		up := make([]float64, h)
		acc := last
		for i := 0; i < h; i++ {
			acc += f[i]
			up[i] = acc
		}
		f = up
	}
	return f
}

// psiWeights returns psi_0..psi_{h-1} of the model written as
// phi(B)(1-B)^d y = theta(B) e.
func (m *Model) psiWeights(h int) []float64 {
	// a(B) = 1 - phi_1 B - ... - phi_p B^p, multiplied by (1 - B) d times
	a := make([]float64, len(m.AR)+1)
	a[0] = 1
	for i, phi := range m.AR {
		a[i+1] = -phi
	}
	for k := 0; k < m.Order.D; k++ {
		next := make([]float64, len(a)+1)
		for i, c := range a {
			next[i] += c
			next[i+1] -= c
		}
		a = next
	}

	psi := make([]float64, h)
	psi[0] = 1
	for j := 1; j < h; j++ {
		var v float64
		if j <= len(m.MA) {
			v = m.MA[j-1]
		}
		for i := 1; i < len(a) && i <= j; i++ {
			v -= a[i] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}
