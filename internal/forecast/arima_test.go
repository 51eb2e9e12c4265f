package forecast

import (
	"errors"
	"math"
	"testing"
)

func TestDifference(t *testing.T) {
	x := []float64{1, 4, 9, 16, 25}

	d1 := Difference(x, 1)
	want1 := []float64{3, 5, 7, 9}
	for i := range want1 {
		if d1[i] != want1[i] {
			t.Fatalf("Difference(x, 1) = %v, want %v", d1, want1)
		}
	}

	d2 := Difference(x, 2)
	if len(d2) != 3 || d2[0] != 2 || d2[2] != 2 {
		t.Fatalf("Difference(x, 2) = %v, want [2 2 2]", d2)
	}

	if x[0] != 1 || x[4] != 25 {
		t.Error("Difference modified its input")
	}
}

func TestKPSS(t *testing.T) {
	stationary := make([]float64, 100)
	for i := range stationary {
		stationary[i] = float64((i * 7) % 11)
	}
	trend := make([]float64, 50)
	for i := range trend {
		trend[i] = 5 + 3*float64(i)
	}

	tests := []struct {
		name string
		x    []float64
		want bool
	}{
		{name: "bounded cycle", x: stationary, want: true},
		{name: "linear trend", x: trend, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stationary(tt.x, 0.05)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Stationary() = %v, want %v (statistic %.3f)", got, tt.want, KPSS(tt.x))
			}
		})
	}

	if _, err := Stationary(stationary, 0.2); err == nil {
		t.Error("Expected error for unsupported significance level")
	}
}

func TestNDiffs(t *testing.T) {
	linear := make([]float64, 50)
	quadratic := make([]float64, 60)
	for i := range linear {
		linear[i] = 5 + 3*float64(i)
	}
	for i := range quadratic {
		quadratic[i] = float64(i * i)
	}

	if d, err := NDiffs(linear, 0.05, 2); err != nil || d != 1 {
		t.Errorf("NDiffs(linear) = %d, %v; want 1", d, err)
	}
	if d, err := NDiffs(quadratic, 0.05, 2); err != nil || d != 2 {
		t.Errorf("NDiffs(quadratic) = %d, %v; want 2", d, err)
	}
	if d, err := NDiffs(quadratic, 0.05, 1); err != nil || d != 1 {
		t.Errorf("NDiffs(quadratic, maxD=1) = %d, %v; want 1", d, err)
	}
}

func TestAutoDegenerate(t *testing.T) {
	opts := Options{MaxP: 2, MaxD: 2, MaxQ: 2, Alpha: 0.05}

	tests := []struct {
		name string
		y    []float64
	}{
		{name: "empty", y: nil},
		{name: "too short", y: []float64{1, 2, 3, 4, 5}},
		{name: "constant", y: []float64{7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7}},
		{name: "non-finite", y: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Auto(tt.y, opts)
			if !errors.Is(err, ErrDegenerateSeries) {
				t.Errorf("Auto() error = %v, want ErrDegenerateSeries", err)
			}
		})
	}
}

func TestAutoLinearSeriesIsExact(t *testing.T) {
	y := make([]float64, 50)
	for i := range y {
		y[i] = 5 + 3*float64(i)
	}

	m, err := Auto(y, Options{MaxP: 2, MaxD: 2, MaxQ: 2, Alpha: 0.05})
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if m.Order != (Order{P: 0, D: 1, Q: 0}) {
		t.Errorf("Expected ARIMA(0,1,0), got %s", m.Order)
	}
	if !m.IncludeConstant || m.Constant != 3 {
		t.Errorf("Expected drift 3, got %v (included %v)", m.Constant, m.IncludeConstant)
	}

	points, err := m.Forecast(10, []int{80, 95})
	if err != nil {
		t.Fatal(err)
	}
	last := y[len(y)-1]
	for _, p := range points {
		want := last + 3*float64(p.Step)
		if math.Abs(p.Mean-want) > 1e-9 {
			t.Errorf("step %d: mean %v, want %v", p.Step, p.Mean, want)
		}
		if p.StdErr != 0 {
			t.Errorf("step %d: expected zero standard error, got %v", p.Step, p.StdErr)
		}
	}
}

func TestAutoQuadraticSeriesIsExact(t *testing.T) {
	y := make([]float64, 60)
	for i := range y {
		y[i] = float64(i * i)
	}

	m, err := Auto(y, Options{MaxP: 1, MaxD: 2, MaxQ: 1, Alpha: 0.05})
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if m.Order.D != 2 {
		t.Fatalf("Expected d = 2, got %s", m.Order)
	}

	points, err := m.Forecast(5, []int{95})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range points {
		n := float64(59 + p.Step)
		if math.Abs(p.Mean-n*n) > 1e-6 {
			t.Errorf("step %d: mean %v, want %v", p.Step, p.Mean, n*n)
		}
	}
}

// cumulativeSeries is a strictly increasing series with bounded, cyclic increments.
func cumulativeSeries(n int) []float64 {
	y := make([]float64, n)
	var total float64
	for i := range y {
		total += 40 + float64((i*7)%11)
		y[i] = total
	}
	return y
}

func TestForecastSanity(t *testing.T) {
	y := cumulativeSeries(120)
	opts := Options{MaxP: 3, MaxD: 2, MaxQ: 3, Alpha: 0.05}

	m, err := Auto(y, opts)
	if err != nil {
		t.Fatalf("Auto failed: %v", err)
	}
	if m.Order.P > opts.MaxP || m.Order.Q > opts.MaxQ || m.Order.D > opts.MaxD {
		t.Errorf("Order %s outside search space", m.Order)
	}
	if m.Order.D < 1 {
		t.Errorf("Expected at least one difference for a cumulative series, got %s", m.Order)
	}
	if m.Sigma2 <= 0 {
		t.Errorf("Expected positive innovation variance, got %v", m.Sigma2)
	}

	horizon := 365
	points, err := m.Forecast(horizon, []int{80, 95})
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != horizon {
		t.Fatalf("Expected %d points, got %d", horizon, len(points))
	}

	last := y[len(y)-1]
	if points[0].Mean < last-60 || points[0].Mean > last+120 {
		t.Errorf("First forecast %v is far from last observation %v", points[0].Mean, last)
	}
	for i := 1; i < 7; i++ {
		if points[i].Mean < points[i-1].Mean {
			t.Errorf("Near-horizon forecast decreases at step %d: %v < %v", i+1, points[i].Mean, points[i-1].Mean)
		}
	}

	prev80, prev95 := -1.0, -1.0
	for _, p := range points {
		b80, b95 := p.Bounds[0], p.Bounds[1]
		if b80.Level != 80 || b95.Level != 95 {
			t.Fatalf("Unexpected bound levels %d, %d", b80.Level, b95.Level)
		}
		if !(b95.Lower <= b80.Lower && b80.Lower <= p.Mean && p.Mean <= b80.Upper && b80.Upper <= b95.Upper) {
			t.Fatalf("step %d: intervals not nested around the mean: %+v", p.Step, p.Bounds)
		}
		w80, w95 := b80.Upper-b80.Lower, b95.Upper-b95.Lower
		if w80 < prev80 || w95 < prev95 {
			t.Fatalf("step %d: interval width shrank", p.Step)
		}
		prev80, prev95 = w80, w95
	}
}

func TestForecastValidation(t *testing.T) {
	m, err := Fit(cumulativeSeries(40), Order{P: 1, D: 1, Q: 0}, true)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if _, err := m.Forecast(0, []int{80}); err == nil {
		t.Error("Expected error for zero horizon")
	}
	if _, err := m.Forecast(5, []int{100}); err == nil {
		t.Error("Expected error for level 100")
	}
}

func TestPsiWeightsRandomWalk(t *testing.T) {
	m := &Model{Order: Order{D: 1}}
	psi := m.psiWeights(5)
	for i, v := range psi {
		if v != 1 {
			t.Errorf("psi[%d] = %v, want 1", i, v)
		}
	}

	ar1 := &Model{Order: Order{P: 1}, AR: []float64{0.5}}
	psi = ar1.psiWeights(4)
	want := []float64{1, 0.5, 0.25, 0.125}
	for i := range want {
		if math.Abs(psi[i]-want[i]) > 1e-12 {
			t.Errorf("AR(1) psi[%d] = %v, want %v", i, psi[i], want[i])
		}
	}
}

func TestAdmissible(t *testing.T) {
	if !admissible([]float64{0.5}, []float64{0.3}) {
		t.Error("Expected stationary, invertible parameters to be admissible")
	}
	if admissible([]float64{1.2}, nil) {
		t.Error("Expected explosive AR(1) to be rejected")
	}
	if admissible([]float64{0.5, 0.6}, nil) {
		t.Error("Expected AR(2) with unit-circle root outside to be rejected")
	}
	if admissible(nil, []float64{-1.5}) {
		t.Error("Expected non-invertible MA(1) to be rejected")
	}
}
