package forecast

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// rootsInsideUnitCircle reports whether every eigenvalue of the companion
// matrix of 1 - c1 B - ... - ck B^k lies strictly inside the unit circle.
func rootsInsideUnitCircle(coefs []float64) bool {
	k := len(coefs)
	switch {
	case k == 0:
		return true
	case k == 1:
		return math.Abs(coefs[0]) < 1
	case sumAbs(coefs) < 1:
		return true
	}

	companion := mat.NewDense(k, k, nil)
	for j, c := range coefs {
		companion.Set(0, j, c)
	}
	for i := 1; i < k; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if cmplx.Abs(v) >= 1 {
			return false
		}
	}
	return true
}

// hannanRissanen returns starting values [ar..., ma...] for z: a long
// autoregression supplies residual estimates, then z is regressed on its own
// lags and the lagged residuals by least squares. Zeros are returned when
// either regression cannot be solved.
func hannanRissanen(z []float64, p, q int) []float64 {
	out := make([]float64, p+q)
	if p+q == 0 {
		return out
	}

	n := len(z)
	long := p + q + 3
	if q == 0 {
		long = 0
	}

	resid := make([]float64, n)
	if long > 0 {
		coef, ok := olsLags(z, nil, long, 0, long)
		if !ok {
			return out
		}
		for t := long; t < n; t++ {
			v := z[t]
			for i := 0; i < long; i++ {
				v -= coef[i] * z[t-i-1]
			}
			resid[t] = v
		}
	}

	start := p
	if q > 0 && long+q > start {
		start = long + q
	}
	coef, ok := olsLags(z, resid, p, q, start)
	if !ok {
		return out
	}
	copy(out, coef)
	return out
}

// olsLags regresses z[t] on z[t-1..t-p] and e[t-1..t-q] for t >= start.
func olsLags(z, e []float64, p, q, start int) ([]float64, bool) {
	cols := p + q
	rows := len(z) - start
	if cols == 0 || rows <= cols {
		return nil, false
	}

	x := mat.NewDense(rows, cols, nil)
	y := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		t := start + r
		for i := 0; i < p; i++ {
			x.Set(r, i, z[t-i-1])
		}
		for j := 0; j < q; j++ {
			x.Set(r, p+j, e[t-j-1])
		}
		y.SetVec(r, z[t])
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		return nil, false
	}

	coef := make([]float64, cols)
	for i := range coef {
		coef[i] = beta.AtVec(i)
		if math.IsNaN(coef[i]) || math.IsInf(coef[i], 0) {
			return nil, false
		}
	}
	return coef, true
}
