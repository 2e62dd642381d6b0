package forecast

import (
	"math"

	"marketwatch/internal/domain"
)

// DefaultSmoothingWindow is the trailing window applied to forecast columns.
const DefaultSmoothingWindow = 7

// Smooth replaces Value, Lower, Upper and Trend with their trailing
// window-period means. Row i averages rows i-window+1..i; earlier rows, and
// windows containing NaN, are NaN. Timestamps and row count are unchanged.
func Smooth(f domain.Forecast, window int) domain.Forecast {
	if window < 1 {
		window = 1
	}
	n := len(f.Points)
	col := func(get func(domain.ForecastPoint) float64) []float64 {
		vals := make([]float64, n)
		for i, p := range f.Points {
			vals[i] = get(p)
		}
		return RollingMean(vals, window)
	}

	value := col(func(p domain.ForecastPoint) float64 { return p.Value })
	lower := col(func(p domain.ForecastPoint) float64 { return p.Lower })
	upper := col(func(p domain.ForecastPoint) float64 { return p.Upper })
	trend := col(func(p domain.ForecastPoint) float64 { return p.Trend })

	out := domain.Forecast{Symbol: f.Symbol, Frequency: f.Frequency, Points: make([]domain.ForecastPoint, n)}
	for i, p := range f.Points {
		out.Points[i] = domain.ForecastPoint{
			Timestamp: p.Timestamp,
			Value:     value[i],
			Lower:     lower[i],
			Upper:     upper[i],
			Trend:     trend[i],
		}
	}
	return out
}

// RollingMean returns the trailing mean of each full window of vals.
func RollingMean(vals []float64, window int) []float64 {
	out := make([]float64, len(vals))
	for i := range vals {
		if i < window-1 {
			out[i] = math.NaN()
			continue
		}
		var sum float64
		for _, v := range vals[i-window+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(window)
	}
	return out
}
