package forecast

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"marketwatch/internal/domain"
)

// Ridge weights for the penalised coefficients. Intercept and base slope
// are never penalised.
const (
	changepointPenalty = 10.0
	seasonalPenalty    = 0.1

	// Changepoints are placed in the first 80% of the history.
	changepointRange = 0.8
)

type seasonality struct {
	periodDays float64
	order      int
}

// additiveModel is y(t) = trend(t) + seasonality(t) with a piecewise linear
// trend and Fourier seasonal terms, fit by ridge-regularised least squares
// on max-abs scaled values.
type additiveModel struct {
	maxChangepoints int
	intervalWidth   float64

	t0           time.Time
	spanSeconds  float64
	yScale       float64
	changepoints []float64
	seasons      []seasonality
	coef         []float64
	sigma        float64
	deltaRate    float64
}

func newAdditiveModel(maxChangepoints int, intervalWidth float64) *additiveModel {
	return &additiveModel{maxChangepoints: maxChangepoints, intervalWidth: intervalWidth}
}

// fit estimates the model coefficients. obs must be sorted by time, hold at
// least two finite values and span a non-zero range.
func (m *additiveModel) fit(obs []domain.Observation) error {
	n := len(obs)
	m.t0 = obs[0].Timestamp
	m.spanSeconds = obs[n-1].Timestamp.Sub(m.t0).Seconds()

	m.yScale = 0
	for _, o := range obs {
		m.yScale = math.Max(m.yScale, math.Abs(o.Value))
	}
	if m.yScale == 0 {
		m.yScale = 1
	}

	m.placeChangepoints(obs)
	m.seasons = chooseSeasonalities(obs)

	p := m.numFeatures()
	penalties := m.penalties()
	rows := n + len(penalties)

	a := mat.NewDense(rows, p, nil)
	b := mat.NewVecDense(rows, nil)
	feat := make([]float64, p)
	for i, o := range obs {
		m.features(o.Timestamp, feat)
		a.SetRow(i, feat)
		b.SetVec(i, o.Value/m.yScale)
	}
	for j, pen := range penalties {
		a.Set(n+j, pen.col, math.Sqrt(pen.weight))
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("least squares: %w", err)
		}
		// Ill-conditioned but solved; the ridge rows keep the result usable.
	}
	m.coef = make([]float64, p)
	for i := range m.coef {
		m.coef[i] = x.AtVec(i)
	}

	resid := make([]float64, n)
	for i, o := range obs {
		m.features(o.Timestamp, feat)
		resid[i] = o.Value - m.yScale*dot(m.coef, feat)
	}
	m.sigma = stat.StdDev(resid, nil)
	if math.IsNaN(m.sigma) {
		m.sigma = 0
	}

	m.deltaRate = 0
	if k := len(m.changepoints); k > 0 {
		for _, d := range m.coef[2 : 2+k] {
			m.deltaRate += math.Abs(d)
		}
		m.deltaRate /= float64(k)
	}
	return nil
}

// predict evaluates the fitted model at each timestamp.
func (m *additiveModel) predict(ts []time.Time) []domain.ForecastPoint {
	z := distuv.UnitNormal.Quantile(0.5 + m.intervalWidth/2)
	k := len(m.changepoints)
	feat := make([]float64, m.numFeatures())

	out := make([]domain.ForecastPoint, len(ts))
	for i, t := range ts {
		m.features(t, feat)
		trend := m.yScale * dot(m.coef[:2+k], feat[:2+k])
		yhat := m.yScale * dot(m.coef, feat)

		variance := m.sigma * m.sigma
		if x := m.scale(t); x > 1 {
			// Future slope changes arrive at the historical changepoint rate
			// with the mean historical magnitude; their effect accumulates
			// linearly with distance past the last observation.
			h := x - 1
			drift := m.yScale * m.deltaRate * math.Sqrt(2*float64(k)*h) * h / 2
			variance += drift * drift
		}
		half := z * math.Sqrt(variance)

		out[i] = domain.ForecastPoint{
			Timestamp: t,
			Value:     yhat,
			Lower:     yhat - half,
			Upper:     yhat + half,
			Trend:     trend,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Design matrix
// ---------------------------------------------------------------------------

func (m *additiveModel) scale(t time.Time) float64 {
	return t.Sub(m.t0).Seconds() / m.spanSeconds
}

func (m *additiveModel) numFeatures() int {
	p := 2 + len(m.changepoints)
	for _, s := range m.seasons {
		p += 2 * s.order
	}
	return p
}

// features fills dst with [1, x, (x-c_j)+..., sin/cos terms...].
func (m *additiveModel) features(t time.Time, dst []float64) {
	x := m.scale(t)
	dst[0] = 1
	dst[1] = x
	i := 2
	for _, c := range m.changepoints {
		dst[i] = math.Max(0, x-c)
		i++
	}

	days := t.Sub(m.t0).Hours() / 24
	for _, s := range m.seasons {
		for k := 1; k <= s.order; k++ {
			arg := 2 * math.Pi * float64(k) * days / s.periodDays
			dst[i] = math.Sin(arg)
			dst[i+1] = math.Cos(arg)
			i += 2
		}
	}
}

type penalty struct {
	col    int
	weight float64
}

func (m *additiveModel) penalties() []penalty {
	var out []penalty
	col := 2
	for range m.changepoints {
		out = append(out, penalty{col: col, weight: changepointPenalty})
		col++
	}
	for _, s := range m.seasons {
		for k := 0; k < 2*s.order; k++ {
			out = append(out, penalty{col: col, weight: seasonalPenalty})
			col++
		}
	}
	return out
}

// placeChangepoints spreads candidate changepoints over observation indices
// in the first 80% of the history.
func (m *additiveModel) placeChangepoints(obs []domain.Observation) {
	m.changepoints = nil
	histSize := int(math.Floor(float64(len(obs)) * changepointRange))
	k := m.maxChangepoints
	if k+1 > histSize {
		k = histSize - 1
	}
	if k <= 0 {
		return
	}

	seen := make(map[int]bool, k)
	for j := 1; j <= k; j++ {
		idx := int(math.Round(float64(j) * float64(histSize-1) / float64(k)))
		if idx <= 0 || seen[idx] {
			continue
		}
		seen[idx] = true
		m.changepoints = append(m.changepoints, m.scale(obs[idx].Timestamp))
	}
	sort.Float64s(m.changepoints)
}

// chooseSeasonalities enables yearly, weekly and daily terms according to
// the history span and sampling spacing.
func chooseSeasonalities(obs []domain.Observation) []seasonality {
	span := obs[len(obs)-1].Timestamp.Sub(obs[0].Timestamp)
	spacing := medianSpacing(obs)

	var out []seasonality
	if span >= 2*365*24*time.Hour {
		out = append(out, seasonality{periodDays: 365.25, order: 10})
	}
	if spacing < 7*24*time.Hour && span >= 14*24*time.Hour {
		out = append(out, seasonality{periodDays: 7, order: 3})
	}
	if spacing < 24*time.Hour && span >= 2*24*time.Hour {
		out = append(out, seasonality{periodDays: 1, order: 4})
	}
	return out
}

func medianSpacing(obs []domain.Observation) time.Duration {
	if len(obs) < 2 {
		return 0
	}
	diffs := make([]time.Duration, 0, len(obs)-1)
	for i := 1; i < len(obs); i++ {
		diffs = append(diffs, obs[i].Timestamp.Sub(obs[i-1].Timestamp))
	}
	sort.Slice(diffs, func(i, j int) bool { return diffs[i] < diffs[j] })
	return diffs[len(diffs)/2]
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
