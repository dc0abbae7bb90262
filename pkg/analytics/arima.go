package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/distuv"
)

// ARIMAOrder is the (p, d, q) order of an ARIMA model.
type ARIMAOrder struct {
	P, D, Q int
}

// DefaultOrder is the model used by the forecasting job.
var DefaultOrder = ARIMAOrder{P: 2, D: 1, Q: 2}

func (o ARIMAOrder) Slice() []int {
	return []int{o.P, o.D, o.Q}
}

// Forecast is the output of FitForecast. Lower[i] <= Values[i] <= Upper[i].
type Forecast struct {
	Order      ARIMAOrder
	AR, MA     []float64
	Sigma2     float64
	AIC, BIC   float64
	Values     []float64
	Lower      []float64
	Upper      []float64
	Confidence float64
}

// minSigma2 keeps the information criteria finite on noise-free series.
const minSigma2 = 1e-12

// FitForecast fits an ARIMA model to series by conditional sum of squares
// and forecasts steps values ahead with a confidence interval at the given
// level (for example 0.95).
func FitForecast(series []float64, order ARIMAOrder, steps int, confidence float64) (*Forecast, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("%w: negative ARIMA order %v", ErrInvalidInput, order.Slice())
	}
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be >= 1, got %d", ErrInvalidInput, steps)
	}
	if confidence <= 0 || confidence >= 1 {
		return nil, fmt.Errorf("%w: confidence must be in (0,1), got %v", ErrInvalidInput, confidence)
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: observation %d is not finite", ErrInvalidInput, i)
		}
	}
	k := order.P + order.Q
	if len(series) <= order.D+order.P+k+1 {
		return nil, fmt.Errorf("%w: %d observations are too few for ARIMA%v", ErrInvalidInput, len(series), order.Slice())
	}

	levels := make([][]float64, 0, order.D+1)
	w := append([]float64(nil), series...)
	for i := 0; i < order.D; i++ {
		levels = append(levels, w)
		w = difference(w)
	}

	params := fitCSS(w, order.P, order.Q)
	ar, ma := params[:order.P], params[order.P:]

	resid := residuals(w, ar, ma)
	sse, nEff := 0.0, 0
	for t := order.P; t < len(resid); t++ {
		sse += resid[t] * resid[t]
		nEff++
	}
	sigma2 := math.Max(sse/float64(nEff), minSigma2)
	nParams := float64(k + 1)
	logLik := float64(nEff) * math.Log(sigma2)

	// Forecast the differenced series; future shocks are zero.
	ext := append([]float64(nil), w...)
	extResid := append([]float64(nil), resid...)
	diffFc := make([]float64, steps)
	for h := 0; h < steps; h++ {
		t := len(ext)
		v := 0.0
		for i, phi := range ar {
			if t-1-i >= 0 {
				v += phi * ext[t-1-i]
			}
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				v += theta * extResid[t-1-j]
			}
		}
		diffFc[h] = v
		ext = append(ext, v)
		extResid = append(extResid, 0)
	}

	values := diffFc
	for i := len(levels) - 1; i >= 0; i-- {
		values = integrate(levels[i][len(levels[i])-1], values)
	}

	psi := integratedPsi(ar, ma, order.D, steps)
	z := distuv.UnitNormal.Quantile(0.5 + confidence/2)

	fc := &Forecast{
		Order:      order,
		AR:         append([]float64(nil), ar...),
		MA:         append([]float64(nil), ma...),
		Sigma2:     sigma2,
		AIC:        logLik + 2*nParams,
		BIC:        logLik + nParams*math.Log(float64(nEff)),
		Values:     values,
		Lower:      make([]float64, steps),
		Upper:      make([]float64, steps),
		Confidence: confidence,
	}
	cum := 0.0
	for h := 0; h < steps; h++ {
		cum += psi[h] * psi[h]
		half := z * math.Sqrt(sigma2*cum)
		fc.Lower[h] = values[h] - half
		fc.Upper[h] = values[h] + half
	}
	return fc, nil
}

func difference(x []float64) []float64 {
	out := make([]float64, len(x)-1)
	for i := 1; i < len(x); i++ {
		out[i-1] = x[i] - x[i-1]
	}
	return out
}

func integrate(last float64, diffs []float64) []float64 {
	out := make([]float64, len(diffs))
	acc := last
	for i, d := range diffs {
		acc += d
		out[i] = acc
	}
	return out
}

// residuals computes the conditional one-step-ahead errors; errors before
// index p are taken as zero.
func residuals(w, ar, ma []float64) []float64 {
	e := make([]float64, len(w))
	for t := len(ar); t < len(w); t++ {
		pred := 0.0
		for i, phi := range ar {
			pred += phi * w[t-1-i]
		}
		for j, theta := range ma {
			if t-1-j >= 0 {
				pred += theta * e[t-1-j]
			}
		}
		e[t] = w[t] - pred
	}
	return e
}

func fitCSS(w []float64, p, q int) []float64 {
	n := p + q
	if n == 0 {
		return nil
	}

	objective := func(x []float64) float64 {
		ar, ma := x[:p], x[p:]
		if !stable(ar) || !stable(negate(ma)) {
			return math.Inf(1)
		}
		sse := 0.0
		for t, e := range residuals(w, ar, ma) {
			if t >= p {
				sse += e * e
			}
		}
		if math.IsNaN(sse) {
			return math.Inf(1)
		}
		return sse
	}

	settings := &optimize.Settings{
		MajorIterations: 2000,
		FuncEvaluations: 4000,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 200,
		},
	}

	initial := make([]float64, n)
	// A limit status still carries the best location found, so only the
	// objective value decides whether it is usable.
	result, _ := optimize.Minimize(optimize.Problem{Func: objective}, initial, settings, &optimize.NelderMead{})
	if result == nil || math.IsInf(result.F, 1) || math.IsNaN(result.F) || result.F > objective(initial) {
		return initial
	}
	return result.X
}

// stable reports whether the polynomial 1 - c1 z - c2 z^2 ... has all roots
// outside the unit circle. Orders above two use the sufficient condition
// sum |c| < 1.
func stable(c []float64) bool {
	switch len(c) {
	case 0:
		return true
	case 1:
		return math.Abs(c[0]) < 1
	case 2:
		return c[0]+c[1] < 1 && c[1]-c[0] < 1 && math.Abs(c[1]) < 1
	default:
		sum := 0.0
		for _, v := range c {
			sum += math.Abs(v)
		}
		return sum < 1
	}
}

func negate(c []float64) []float64 {
	out := make([]float64, len(c))
	for i, v := range c {
		out[i] = -v
	}
	return out
}

// integratedPsi returns the first steps MA(infinity) weights of the
// integrated process.
func integratedPsi(ar, ma []float64, d, steps int) []float64 {
	psi := make([]float64, steps)
	psi[0] = 1
	for j := 1; j < steps; j++ {
		v := 0.0
		if j <= len(ma) {
			v += ma[j-1]
		}
		for i := 1; i <= len(ar) && i <= j; i++ {
			v += ar[i-1] * psi[j-i]
		}
		psi[j] = v
	}
	for k := 0; k < d; k++ {
		acc := 0.0
		for j := range psi {
			acc += psi[j]
			psi[j] = acc
		}
	}
	return psi
}
