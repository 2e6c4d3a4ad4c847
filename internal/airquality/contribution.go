package airquality

// Contributions maps pollutants to their share of the weighted total, in
// percent.
type Contributions map[Pollutant]float64

// ContributionWeights are the fixed per-pollutant weights used both by the
// contribution estimate and by the synthetic training dataset.
var ContributionWeights = map[Pollutant]float64{
	PM25: 4.0,
	PM10: 0.8,
	NO2:  0.5,
	SO2:  0.3,
	CO:   0.1,
	O3:   1.5,
}

// ComputeContributions weights each known pollutant and normalizes the result
// to percentages. Unknown codes are ignored. When the weighted total is zero
// the weighted values (all zero) are returned as is.
func ComputeContributions(readings Pollutants) Contributions {
	out := make(Contributions, len(readings))
	var total float64

	for p, v := range readings {
		w, ok := ContributionWeights[p]
		if !ok {
			continue
		}
		out[p] = v * w
		total += v * w
	}

	if total > 0 {
		for p, v := range out {
			out[p] = v / total * 100
		}
	}
	return out
}
