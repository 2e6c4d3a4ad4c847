package training

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/i474232898/aqi-service/internal/regression"
)

type ForestOptions struct {
	Trees int
	Tree  TreeOptions
	Seed  uint64
}

// FitForest grows bootstrapped trees in parallel. Each tree gets its own
// generator derived from Seed, so results do not depend on scheduling. The
// second result is the mean impurity importance per feature, summing to 1.
func FitForest(ctx context.Context, X [][]float64, y []float64, opts ForestOptions) (*regression.Ensemble, []float64, error) {
	if opts.Trees < 1 {
		return nil, nil, fmt.Errorf("fit forest: need at least one tree, got %d", opts.Trees)
	}
	if len(X) == 0 || len(X) != len(y) {
		return nil, nil, fmt.Errorf("fit forest: %d rows, %d targets", len(X), len(y))
	}

	trees := make([]regression.Tree, opts.Trees)
	gains := make([][]float64, opts.Trees)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for t := range trees {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewPCG(opts.Seed, uint64(t)))
			trees[t], gains[t] = FitTree(X, y, bootstrap(len(X), rng), opts.Tree, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("fit forest: %w", err)
	}

	importance := make([]float64, len(X[0]))
	for _, gain := range gains {
		floats.Add(importance, normalize(gain))
	}
	return &regression.Ensemble{Average: true, Trees: trees}, normalize(importance), nil
}

type BoostingOptions struct {
	Stages       int
	LearningRate float64
	Tree         TreeOptions
	Seed         uint64
}

// FitBoosting fits shallow trees to squared-error residuals, starting from
// the target mean. Importances are averaged over stages like FitForest.
func FitBoosting(ctx context.Context, X [][]float64, y []float64, opts BoostingOptions) (*regression.Ensemble, []float64, error) {
	if opts.Stages < 1 || opts.LearningRate <= 0 {
		return nil, nil, fmt.Errorf("fit boosting: invalid options %+v", opts)
	}
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, nil, fmt.Errorf("fit boosting: %d rows, %d targets", n, len(y))
	}

	var init float64
	for _, v := range y {
		init += v
	}
	init /= float64(n)

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = init
	}
	residual := make([]float64, n)
	rows := allRows(n)
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))

	importance := make([]float64, len(X[0]))
	ens := &regression.Ensemble{Init: init, LearningRate: opts.LearningRate}
	for s := 0; s < opts.Stages; s++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("fit boosting: %w", err)
		}
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		tree, gain := FitTree(X, residual, rows, opts.Tree, rng)
		floats.Add(importance, normalize(gain))
		for i, x := range X {
			pred[i] += opts.LearningRate * tree.Predict(x)
		}
		ens.Trees = append(ens.Trees, tree)
	}
	return ens, normalize(importance), nil
}
