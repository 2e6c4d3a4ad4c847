package training

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/aqi-service/internal/regression"
)

// Evaluate scores predictions against the true targets.
func Evaluate(pred, actual []float64) regression.Metrics {
	var absSum, sqSum float64
	for i := range pred {
		d := pred[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
	}
	n := float64(len(pred))
	return regression.Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		R2:   stat.RSquaredFrom(pred, actual, nil),
	}
}
