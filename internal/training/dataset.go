package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/i474232898/aqi-service/internal/airquality"
)

// FeatureColumns is the model input schema in artifact order.
var FeatureColumns = []string{
	"PM2.5", "PM10", "NO2", "SO2", "CO", "O3",
	"Temperature", "Humidity", "Wind_Speed", "Pressure",
}

const (
	TargetColumn    = "AQI"
	TimestampColumn = "Timestamp"
	timestampLayout = "2006-01-02 15:04:05"
)

var ErrBadDataset = errors.New("bad dataset")

// Dataset is a dense feature matrix with its target column.
type Dataset struct {
	Features []string
	X        [][]float64
	Y        []float64
}

func (d *Dataset) Len() int { return len(d.Y) }

func (d *Dataset) subset(idx []int) *Dataset {
	out := &Dataset{
		Features: d.Features,
		X:        make([][]float64, len(idx)),
		Y:        make([]float64, len(idx)),
	}
	for i, j := range idx {
		out.X[i] = d.X[j]
		out.Y[i] = d.Y[j]
	}
	return out
}

// Sample is one generated row.
type Sample struct {
	Timestamp time.Time
	Values    []float64 // aligned with FeatureColumns
	AQI       float64
}

// Generate draws n synthetic rows from seed. Timestamps are hourly,
// starting at start.
func Generate(n int, seed uint64, start time.Time) []Sample {
	src := rand.NewPCG(seed, seed)

	gamma := func(shape, scale float64) distuv.Gamma {
		return distuv.Gamma{Alpha: shape, Beta: 1 / scale, Src: src}
	}
	dists := []interface{ Rand() float64 }{
		gamma(2, 15),  // PM2.5
		gamma(3, 20),  // PM10
		gamma(2, 10),  // NO2
		gamma(1.5, 5), // SO2
		gamma(1, 0.5), // CO
		gamma(2, 12),  // O3
		distuv.Normal{Mu: 25, Sigma: 10, Src: src},
		distuv.Uniform{Min: 30, Max: 90, Src: src},
		gamma(2, 3),
		distuv.Normal{Mu: 1013, Sigma: 10, Src: src},
	}

	samples := make([]Sample, n)
	for i := range samples {
		values := make([]float64, len(dists))
		for j, d := range dists {
			values[j] = d.Rand()
		}
		samples[i] = Sample{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Values:    values,
			AQI:       syntheticAQI(values),
		}
	}
	return samples
}

// syntheticAQI is the dominant weighted pollutant, capped at the top of
// the scale.
func syntheticAQI(values []float64) float64 {
	var aqi float64
	for i, p := range airquality.RequiredPollutants {
		aqi = math.Max(aqi, values[i]*airquality.ContributionWeights[p])
	}
	return math.Min(aqi, airquality.MaxAQI)
}

// WriteCSV writes samples with a header row. Column order is
// FeatureColumns, AQI, Timestamp.
func WriteCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)

	header := append(append([]string{}, FeatureColumns...), TargetColumn, TimestampColumn)
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, len(header))
	for _, s := range samples {
		for j, v := range s.Values {
			row[j] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		row[len(FeatureColumns)] = strconv.FormatFloat(s.AQI, 'f', -1, 64)
		row[len(FeatureColumns)+1] = s.Timestamp.Format(timestampLayout)
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV loads the feature and target columns by header name. Extra
// columns are ignored; rows with an empty or non-numeric cell are rejected.
func ReadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadDataset, err)
	}
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}

	cols := make([]int, len(FeatureColumns))
	for i, name := range FeatureColumns {
		p, ok := pos[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrBadDataset, name)
		}
		cols[i] = p
	}
	target, ok := pos[TargetColumn]
	if !ok {
		return nil, fmt.Errorf("%w: missing column %q", ErrBadDataset, TargetColumn)
	}

	ds := &Dataset{Features: append([]string{}, FeatureColumns...)}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadDataset, line, err)
		}

		x := make([]float64, len(cols))
		for i, c := range cols {
			if x[i], err = parseCell(rec[c]); err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %v", ErrBadDataset, line, FeatureColumns[i], err)
			}
		}
		y, err := parseCell(rec[target])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d column %s: %v", ErrBadDataset, line, TargetColumn, err)
		}
		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, y)
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrBadDataset)
	}
	return ds, nil
}

func parseCell(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}
