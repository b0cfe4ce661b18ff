package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrInsufficientData is returned by Fit when the system has fewer rows
	// than feature columns.
	ErrInsufficientData = errors.New("regression: insufficient data")
	// ErrShapeMismatch is returned when an input width does not match the
	// fitted feature count, or when X and y disagree on length.
	ErrShapeMismatch = errors.New("regression: shape mismatch")
	// ErrSingular is returned when the normal equations cannot be factorized.
	ErrSingular = errors.New("regression: singular system")
)

// madConsistency turns the median absolute residual into a consistent
// estimate of the standard deviation under normal errors.
const madConsistency = 0.6744897501960817

// Options holds the tunables of the Huber fit.
type Options struct {
	// Epsilon is the robustness threshold in units of the residual scale.
	// Residuals beyond Epsilon*scale contribute linearly instead of
	// quadratically. Must be >= 1.
	Epsilon float64 `json:"epsilon" mapstructure:"epsilon"`
	// Alpha is the L2 penalty on the coefficients. The intercept is not
	// penalized.
	Alpha   float64 `json:"alpha" mapstructure:"alpha"`
	MaxIter int     `json:"max_iter" mapstructure:"max_iter"`
	Tol     float64 `json:"tol" mapstructure:"tol"`
}

// DefaultOptions returns epsilon 1.35, alpha 1e-4, 100 iterations, tol 1e-5.
func DefaultOptions() Options {
	return Options{Epsilon: 1.35, Alpha: 1e-4, MaxIter: 100, Tol: 1e-5}
}

// SetDefaults fills zero fields with DefaultOptions.
func (o *Options) SetDefaults() {
	d := DefaultOptions()
	if o.Epsilon == 0 {
		o.Epsilon = d.Epsilon
	}
	if o.Alpha == 0 {
		o.Alpha = d.Alpha
	}
	if o.MaxIter == 0 {
		o.MaxIter = d.MaxIter
	}
	if o.Tol == 0 {
		o.Tol = d.Tol
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.Epsilon < 1 {
		return fmt.Errorf("epsilon must be >= 1, got %v", o.Epsilon)
	}
	if o.Alpha <= 0 {
		return fmt.Errorf("alpha must be > 0, got %v", o.Alpha)
	}
	if o.MaxIter <= 0 {
		return fmt.Errorf("max_iter must be > 0, got %d", o.MaxIter)
	}
	if o.Tol <= 0 {
		return fmt.Errorf("tol must be > 0, got %v", o.Tol)
	}
	return nil
}

// Huber is a fitted linear model with Huber loss. It is immutable after Fit.
type Huber struct {
	coef       []float64
	intercept  float64
	scale      float64
	iterations int
	converged  bool
}

// State is the serializable form of a fitted Huber model.
type State struct {
	Coef       []float64 `json:"coef"`
	Intercept  float64   `json:"intercept"`
	Scale      float64   `json:"scale"`
	Iterations int       `json:"iterations"`
	Converged  bool      `json:"converged"`
}

// Fit estimates the coefficients with iteratively reweighted least squares.
// Each iteration solves the ridge-penalized weighted normal equations with a
// Cholesky factorization; weights follow the Huber psi function with a
// residual scale re-estimated from the median absolute residual.
func Fit(X mat.Matrix, y []float64, opts Options) (*Huber, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	n, p := X.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("%w: X has %d rows, y has %d", ErrShapeMismatch, n, len(y))
	}
	if n == 0 || n < p {
		return nil, fmt.Errorf("%w: %d rows for %d feature columns", ErrInsufficientData, n, p)
	}
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("regression: target %d is not finite", i)
		}
	}

	k := p + 1
	z := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		z.Set(i, 0, 1)
		for j := 0; j < p; j++ {
			z.Set(i, j+1, X.At(i, j))
		}
	}

	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	beta, err := solveWeighted(z, y, w, opts.Alpha)
	if err != nil {
		return nil, err
	}

	h := &Huber{}
	resid := make([]float64, n)
	abs := make([]float64, n)
	yScale := 1 + floats.Norm(y, math.Inf(1))
	for it := 1; it <= opts.MaxIter; it++ {
		h.iterations = it
		residuals(z, y, beta, resid)
		for i, r := range resid {
			abs[i] = math.Abs(r)
		}
		sort.Float64s(abs)
		sigma := stat.Quantile(0.5, stat.LinInterp, abs, nil) / madConsistency
		h.scale = sigma
		if sigma <= 1e-12*yScale {
			h.converged = true
			break
		}
		threshold := opts.Epsilon * sigma
		for i, r := range resid {
			if a := math.Abs(r); a > threshold {
				w[i] = threshold / a
			} else {
				w[i] = 1
			}
		}
		next, err := solveWeighted(z, y, w, opts.Alpha)
		if err != nil {
			return nil, err
		}
		delta := 0.0
		for j := range next {
			delta = math.Max(delta, math.Abs(next[j]-beta[j]))
		}
		beta = next
		if delta < opts.Tol*(1+floats.Norm(beta, math.Inf(1))) {
			h.converged = true
			break
		}
	}

	h.intercept = beta[0]
	h.coef = append([]float64(nil), beta[1:]...)
	return h, nil
}

// solveWeighted solves (ZᵀWZ + αD)β = ZᵀWy where D is the identity with a
// zero in the intercept position.
func solveWeighted(z *mat.Dense, y, w []float64, alpha float64) ([]float64, error) {
	n, k := z.Dims()
	zw := mat.NewDense(n, k, nil)
	yw := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		sw := math.Sqrt(w[i])
		for j := 0; j < k; j++ {
			zw.Set(i, j, sw*z.At(i, j))
		}
		yw.SetVec(i, sw*y[i])
	}

	a := mat.NewSymDense(k, nil)
	a.SymOuterK(1, zw.T())
	for j := 1; j < k; j++ {
		a.SetSym(j, j, a.At(j, j)+alpha)
	}
	var b mat.VecDense
	b.MulVec(zw.T(), yw)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, ErrSingular
	}
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return mat.Col(nil, 0, &beta), nil
}

func residuals(z *mat.Dense, y, beta []float64, dst []float64) {
	for i := range y {
		dst[i] = y[i] - floats.Dot(z.RawRowView(i), beta)
	}
}

// FromState rebuilds a fitted model.
func FromState(s State) (*Huber, error) {
	if len(s.Coef) == 0 {
		return nil, fmt.Errorf("%w: empty coefficient vector", ErrShapeMismatch)
	}
	for _, c := range append([]float64{s.Intercept}, s.Coef...) {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, errors.New("regression: non-finite coefficient in state")
		}
	}
	return &Huber{
		coef:       append([]float64(nil), s.Coef...),
		intercept:  s.Intercept,
		scale:      s.Scale,
		iterations: s.Iterations,
		converged:  s.Converged,
	}, nil
}

// State returns a copy of the fitted parameters.
func (h *Huber) State() State {
	return State{
		Coef:       append([]float64(nil), h.coef...),
		Intercept:  h.intercept,
		Scale:      h.scale,
		Iterations: h.iterations,
		Converged:  h.converged,
	}
}

// NumFeatures is the expected input width.
func (h *Huber) NumFeatures() int { return len(h.coef) }

// Coef returns a copy of the coefficients.
func (h *Huber) Coef() []float64 { return append([]float64(nil), h.coef...) }

// Intercept returns the fitted intercept.
func (h *Huber) Intercept() float64 { return h.intercept }

// Scale returns the final robust residual scale.
func (h *Huber) Scale() float64 { return h.scale }

// Converged reports whether IRLS stopped before MaxIter.
func (h *Huber) Converged() bool { return h.converged }

// Iterations returns the number of IRLS iterations run.
func (h *Huber) Iterations() int { return h.iterations }

// PredictVec returns the estimate for one transformed row.
func (h *Huber) PredictVec(x []float64) (float64, error) {
	if len(x) != len(h.coef) {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, len(x), len(h.coef))
	}
	return h.intercept + floats.Dot(h.coef, x), nil
}

// Predict returns one estimate per row of X.
func (h *Huber) Predict(X mat.Matrix) ([]float64, error) {
	n, p := X.Dims()
	if p != len(h.coef) {
		return nil, fmt.Errorf("%w: got %d features, want %d", ErrShapeMismatch, p, len(h.coef))
	}
	var out mat.VecDense
	out.MulVec(X, mat.NewVecDense(p, append([]float64(nil), h.coef...)))
	res := make([]float64, n)
	for i := range res {
		res[i] = out.AtVec(i) + h.intercept
	}
	return res, nil
}
