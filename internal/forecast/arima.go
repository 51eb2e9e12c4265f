// Package forecast fits automatic-order ARIMA models to a univariate series
// and projects them forward with prediction intervals.
package forecast

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// ErrDegenerateSeries is returned for series that are empty, too short or constant.
var ErrDegenerateSeries = errors.New("degenerate series")

// MinObservations is the shortest series Auto accepts.
const MinObservations = 10

// penalty is the objective value of inadmissible parameters.
const penalty = 1e100

// Order is an ARIMA (p, d, q) order
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// Options bound the automatic order search
type Options struct {
	MaxP  int
	MaxD  int
	MaxQ  int
	Alpha float64 // KPSS significance level
}

// Model is a fitted ARIMA model. The constant is the mean of the
// differenced series: a mean when d = 0, a drift when d = 1.
type Model struct {
	Order           Order
	IncludeConstant bool
	Constant        float64
	AR              []float64
	MA              []float64
	Sigma2          float64
	LogLik          float64
	AICc            float64
	NObs            int

	y     []float64 // original series
	resid []float64 // residuals on the differenced scale
}

// Residuals returns the conditional residuals of the differenced series.
func (m *Model) Residuals() []float64 {
	return append([]float64(nil), m.resid...)
}

// Auto selects d by repeated KPSS tests and (p, q, constant) by minimum
// AICc over 0..MaxP x 0..MaxQ, then returns the best fitted model.
func Auto(y []float64, opts Options) (*Model, error) {
	if err := checkSeries(y); err != nil {
		return nil, err
	}

	d, err := NDiffs(y, opts.Alpha, opts.MaxD)
	if err != nil {
		return nil, err
	}

	w := Difference(y, d)
	if isConstant(w) {
		return constantModel(y, d), nil
	}

	// All candidates condition on the same leading observations so their
	// likelihoods cover the same sample.
	ncond := opts.MaxP
	if ncond >= len(w)-2 {
		ncond = 0
	}

	constants := []bool{false}
	if d <= 1 {
		constants = []bool{true, false}
	}

	var (
		best    *Model
		lastErr error
	)
	for p := 0; p <= opts.MaxP; p++ {
		for q := 0; q <= opts.MaxQ; q++ {
			for _, c := range constants {
				m, err := fit(y, Order{P: p, D: d, Q: q}, c, ncond)
				if err != nil {
					lastErr = err
					continue
				}
				if best == nil || m.AICc < best.AICc {
					best = m
				}
			}
		}
	}

	if best == nil {
		if lastErr == nil {
			lastErr = fmt.Errorf("empty search space")
		}
		return nil, fmt.Errorf("no ARIMA model could be fitted: %w", lastErr)
	}
	return best, nil
}

// Fit estimates an ARIMA model of the given order by conditional sum of squares.
// The constant is ignored when d >= 2.
func Fit(y []float64, order Order, constant bool) (*Model, error) {
	if err := checkSeries(y); err != nil {
		return nil, err
	}
	return fit(y, order, constant, order.P)
}

func checkSeries(y []float64) error {
	switch {
	case len(y) == 0:
		return fmt.Errorf("%w: empty series", ErrDegenerateSeries)
	case len(y) < MinObservations:
		return fmt.Errorf("%w: %d observations, need at least %d", ErrDegenerateSeries, len(y), MinObservations)
	case isConstant(y):
		return fmt.Errorf("%w: constant series", ErrDegenerateSeries)
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrDegenerateSeries)
		}
	}
	return nil
}

// constantModel is the exact fit for a series whose d-th difference is
// constant. It keeps that constant at any d so the extrapolation stays exact.
func constantModel(y []float64, d int) *Model {
	w := Difference(y, d)
	m := &Model{
		Order:  Order{D: d},
		NObs:   len(y),
		y:      append([]float64(nil), y...),
		resid:  make([]float64, len(w)),
		LogLik: math.Inf(1),
		AICc:   math.Inf(-1),
	}
	if len(w) > 0 && w[0] != 0 {
		m.IncludeConstant = true
		m.Constant = w[0]
	}
	return m
}

func fit(y []float64, order Order, constant bool, ncond int) (*Model, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("invalid order %s", order)
	}
	if order.D >= 2 {
		constant = false
	}
	if ncond < order.P {
		ncond = order.P
	}

	w := Difference(y, order.D)
	n := len(w)
	nu := n - ncond
	k := order.P + order.Q + 1
	if constant {
		k++
	}
	if nu-k-1 <= 0 {
		return nil, fmt.Errorf("%s: %d usable observations are too few", order, nu)
	}

	var c float64
	if constant {
		c = stat.Mean(w, nil)
	}
	z := make([]float64, n)
	for i, v := range w {
		z[i] = v - c
	}

	p, q := order.P, order.Q
	params := make([]float64, p+q)
	if p+q > 0 {
		objective := func(x []float64) float64 {
			if !admissible(x[:p], x[p:]) {
				return penalty
			}
			_, sse := cssResiduals(z, x[:p], x[p:], ncond)
			return sse
		}

		start := hannanRissanen(z, p, q)
		if !admissible(start[:p], start[p:]) {
			start = make([]float64, p+q)
		}
		copy(params, start)

		settings := &optimize.Settings{
			MajorIterations: 2000,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-10,
				Relative:   1e-10,
				Iterations: 200,
			},
		}
		res, err := optimize.Minimize(optimize.Problem{Func: objective}, start, settings, &optimize.NelderMead{})
		if res != nil && res.F < objective(start) && admissible(res.X[:p], res.X[p:]) {
			copy(params, res.X)
		} else if err != nil && res == nil {
			return nil, fmt.Errorf("%s: optimizer failed: %w", order, err)
		}
	}

	ar := append([]float64(nil), params[:p]...)
	ma := append([]float64(nil), params[p:]...)
	resid, sse := cssResiduals(z, ar, ma, ncond)
	sigma2 := sse / float64(nu)

	loglik := -0.5 * float64(nu) * (math.Log(2*math.Pi) + math.Log(sigma2) + 1)
	aicc := -2*loglik + 2*float64(k) + 2*float64(k)*float64(k+1)/float64(nu-k-1)
	if math.IsNaN(aicc) {
		return nil, fmt.Errorf("%s: likelihood is not finite", order)
	}

	return &Model{
		Order:           order,
		IncludeConstant: constant,
		Constant:        c,
		AR:              ar,
		MA:              ma,
		Sigma2:          sigma2,
		LogLik:          loglik,
		AICc:            aicc,
		NObs:            len(y),
		y:               append([]float64(nil), y...),
		resid:           resid,
	}, nil
}

// cssResiduals computes conditional residuals of the zero-mean series z,
// treating the first ncond residuals as zero, and their sum of squares.
func cssResiduals(z, ar, ma []float64, ncond int) ([]float64, float64) {
	n := len(z)
	e := make([]float64, n)
	var sse float64
	for t := ncond; t < n; t++ {
		v := z[t]
		for i, phi := range ar {
			v -= phi * z[t-i-1]
		}
		for j, theta := range ma {
			if t-j-1 >= ncond {
				v -= theta * e[t-j-1]
			}
		}
		e[t] = v
		sse += v * v
	}
	return e, sse
}

// admissible reports whether ar is stationary and ma is invertible.
func admissible(ar, ma []float64) bool {
	if !rootsInsideUnitCircle(ar) {
		return false
	}
	neg := make([]float64, len(ma))
	floats.ScaleTo(neg, -1, ma)
	return rootsInsideUnitCircle(neg)
}

// sumAbs bounds the companion spectral radius: below 1 means stationary.
func sumAbs(x []float64) float64 {
	return floats.Norm(x, 1)
}
