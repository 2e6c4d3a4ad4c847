package training

import (
	"context"
	"errors"
	"fmt"
	"cmp"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/aqi-service/internal/regression"
)

const (
	ModelLinear   = "Linear Regression"
	ModelForest   = "Random Forest"
	ModelBoosting = "Gradient Boosting"
)

type Options struct {
	TestFraction    float64
	OutlierQuantile float64
	Seed            uint64
	Forest          ForestOptions
	Boosting        BoostingOptions
}

// DefaultOptions mirrors the production training run.
func DefaultOptions() Options {
	return Options{
		TestFraction:    0.2,
		OutlierQuantile: 0.99,
		Seed:            42,
		Forest: ForestOptions{
			Trees: 100,
			Tree:  TreeOptions{MaxDepth: 12, MinSamplesLeaf: 2, MaxFeatures: 0},
			Seed:  42,
		},
		Boosting: BoostingOptions{
			Stages:       100,
			LearningRate: 0.1,
			Tree:         TreeOptions{MaxDepth: 3, MinSamplesLeaf: 1},
			Seed:         42,
		},
	}
}

// Candidate is one fitted model and its hold-out metrics. Importance is the
// normalized impurity importance per feature for tree ensembles, nil
// otherwise.
type Candidate struct {
	Name       string
	Family     regression.Family
	Model      regression.Model
	Metrics    regression.Metrics
	Importance []float64
}

// FeatureImportance pairs a feature name with its importance score.
type FeatureImportance struct {
	Feature string
	Score   float64
}

type Report struct {
	Train      int
	Test       int
	Caps       []float64
	Candidates []Candidate
	Best       Candidate

	// Importance ranks the best model's features, highest first.
	Importance []FeatureImportance
}

// Train caps outliers, splits, fits every candidate and returns the
// artifact built from the one with the lowest test RMSE. ds is modified in
// place by the outlier cap.
func Train(ctx context.Context, ds *Dataset, opts Options, logger *slog.Logger) (*regression.Artifact, Report, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ds.Len() < 10 {
		return nil, Report{}, fmt.Errorf("%w: need at least 10 rows, got %d", ErrBadDataset, ds.Len())
	}

	var rep Report
	rep.Caps = CapOutliers(ds, opts.OutlierQuantile)

	train, test := Split(ds, opts.TestFraction, rand.New(rand.NewPCG(opts.Seed, opts.Seed)))
	rep.Train, rep.Test = train.Len(), test.Len()
	logger.Info("dataset split", "train", rep.Train, "test", rep.Test)

	scaler := FitScaler(train.X)
	trainScaled, err := transformAll(scaler, train.X)
	if err != nil {
		return nil, rep, err
	}
	testScaled, err := transformAll(scaler, test.X)
	if err != nil {
		return nil, rep, err
	}

	type fitFunc func() (regression.Model, []float64, error)
	candidates := []struct {
		name   string
		family regression.Family
		scaled bool
		fit    fitFunc
	}{
		{ModelLinear, regression.FamilyLinear, true, func() (regression.Model, []float64, error) {
			m, err := FitLinear(trainScaled, train.Y)
			return m, nil, err
		}},
		{ModelForest, regression.FamilyEnsemble, false, func() (regression.Model, []float64, error) {
			return FitForest(ctx, train.X, train.Y, opts.Forest)
		}},
		{ModelBoosting, regression.FamilyEnsemble, false, func() (regression.Model, []float64, error) {
			return FitBoosting(ctx, train.X, train.Y, opts.Boosting)
		}},
	}

	for _, c := range candidates {
		started := time.Now()
		m, importance, err := c.fit()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, rep, err
			}
			logger.Warn("model failed to fit", "model", c.name, "error", err)
			continue
		}

		X := test.X
		if c.scaled {
			X = testScaled
		}
		pred := make([]float64, len(X))
		for i, x := range X {
			pred[i] = m.Predict(x)
		}
		metrics := Evaluate(pred, test.Y)

		logger.Info("model trained",
			"model", c.name,
			"mae", metrics.MAE,
			"rmse", metrics.RMSE,
			"r2", metrics.R2,
			"took", time.Since(started).Round(time.Millisecond),
		)
		rep.Candidates = append(rep.Candidates, Candidate{
			Name:       c.name,
			Family:     c.family,
			Model:      m,
			Metrics:    metrics,
			Importance: importance,
		})
	}

	if len(rep.Candidates) == 0 {
		return nil, rep, errors.New("no model could be fitted")
	}

	rep.Best = rep.Candidates[0]
	for _, c := range rep.Candidates[1:] {
		if c.Metrics.RMSE < rep.Best.Metrics.RMSE {
			rep.Best = c
		}
	}
	logger.Info("best model selected", "model", rep.Best.Name, "rmse", rep.Best.Metrics.RMSE)

	if rep.Best.Importance != nil {
		rep.Importance = rankImportance(ds.Features, rep.Best.Importance)
		attrs := make([]any, 0, len(rep.Importance))
		for _, fi := range rep.Importance {
			attrs = append(attrs, slog.Float64(fi.Feature, fi.Score))
		}
		logger.Info("feature importance", slog.Group("importance", attrs...))
	}

	artifact := &regression.Artifact{
		ID:        uuid.NewString(),
		Name:      rep.Best.Name,
		Family:    rep.Best.Family,
		Features:  append([]string(nil), ds.Features...),
		Scaler:    scaler,
		Model:     rep.Best.Model,
		Metrics:   rep.Best.Metrics,
		TrainedAt: time.Now().UTC(),
	}
	if err := artifact.Validate(); err != nil {
		return nil, rep, err
	}
	return artifact, rep, nil
}

func rankImportance(features []string, scores []float64) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(scores))
	for i, v := range scores {
		if i < len(features) {
			out = append(out, FeatureImportance{Feature: features[i], Score: v})
		}
	}
	slices.SortStableFunc(out, func(a, b FeatureImportance) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}
