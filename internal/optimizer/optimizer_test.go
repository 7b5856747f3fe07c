package optimizer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func sumCost(ch Chromosome) (float64, error) {
	sum := 0.0
	for _, x := range ch {
		sum += x
	}
	return sum, nil
}

func negSumCost(ch Chromosome) (float64, error) {
	sum, _ := sumCost(ch)
	return -sum, nil
}

func uniformBounds(n int, lower, upper float64) ([]float64, []float64) {
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := 0; i < n; i++ {
		lo[i] = lower
		hi[i] = upper
	}
	return lo, hi
}

func testParameters() Parameters {
	lo, hi := uniformBounds(5, -50, 50)
	return Parameters{
		NumParams:      5,
		LowerLim:       lo,
		UpperLim:       hi,
		PopulationSize: 20,
		MaxGenerations: 30,
		CrossoverRate:  0.6,
		MutationRate:   0.3,
		Seed:           42,
	}
}

func TestAllZeroRandomness(t *testing.T) {
	lo, hi := uniformBounds(3, 0, 10)
	params := Parameters{
		NumParams:      3,
		LowerLim:       lo,
		UpperLim:       hi,
		PopulationSize: 4,
		MaxGenerations: 1,
		CrossoverRate:  0,
		MutationRate:   0,
		Integer:        true,
	}

	engine, err := New(params, sumCost, WithRand(&scriptedRand{}), WithLogger(quietLogger))
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	chromosomes, fitness := engine.Population()
	for i := range chromosomes {
		assert.Equal(t, Chromosome{0, 0, 0}, chromosomes[i])
		assert.Equal(t, 0.0, fitness[i])
	}

	result, err := engine.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Chromosome{0, 0, 0}, result.Chromosome)
	assert.Equal(t, 0.0, result.Fitness)
	assert.Equal(t, 1, result.Generations)
	assert.Equal(t, PhaseTerminal, engine.Phase())
}

func TestNaNFitnessSortsLast(t *testing.T) {
	params := testParameters()
	params.PopulationSize = 4

	calls := 0
	cost := func(ch Chromosome) (float64, error) {
		calls++
		if calls == 1 {
			return math.NaN(), nil
		}
		return sumCost(ch)
	}

	engine, err := New(params, cost, WithLogger(quietLogger))
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	_, fitness := engine.Population()
	assert.True(t, math.IsInf(fitness[len(fitness)-1], -1))
	assert.False(t, math.IsInf(engine.BestFitness(), 0))
	assert.False(t, math.IsNaN(engine.BestFitness()))
}

func TestCostFunctionErrorPropagates(t *testing.T) {
	boom := errors.New("boom")

	calls := 0
	cost := func(ch Chromosome) (float64, error) {
		calls++
		if calls == 3 {
			return 0, boom
		}
		return sumCost(ch)
	}

	engine, err := New(testParameters(), cost, WithLogger(quietLogger))
	require.NoError(t, err)

	_, err = engine.Optimize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var costErr *CostFunctionError
	require.ErrorAs(t, err, &costErr)
	assert.Equal(t, 2, costErr.Slot)
	assert.Equal(t, 0, costErr.Generation)
}

func TestCostFunctionPanicBecomesError(t *testing.T) {
	engine, err := New(testParameters(), func(Chromosome) (float64, error) {
		panic("bad objective")
	}, WithLogger(quietLogger))
	require.NoError(t, err)

	err = engine.Initialize()
	var costErr *CostFunctionError
	require.ErrorAs(t, err, &costErr)
	assert.Contains(t, costErr.Error(), "bad objective")
}

func TestInvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		modify func(p *Parameters)
	}{
		{"zero params", func(p *Parameters) { p.NumParams = 0 }},
		{"bounds length", func(p *Parameters) { p.LowerLim = p.LowerLim[:2] }},
		{"lower above upper", func(p *Parameters) { p.LowerLim[1] = 100 }},
		{"infinite bound", func(p *Parameters) { p.UpperLim[0] = math.Inf(1) }},
		{"odd population", func(p *Parameters) { p.PopulationSize = 7 }},
		{"zero population", func(p *Parameters) { p.PopulationSize = -2 }},
		{"zero generations", func(p *Parameters) { p.MaxGenerations = 0 }},
		{"crossover rate", func(p *Parameters) { p.CrossoverRate = 1.5 }},
		{"mutation rate", func(p *Parameters) { p.MutationRate = math.NaN() }},
		{"cooling rate", func(p *Parameters) { p.CoolingRate = -0.1 }},
		{"tournament size", func(p *Parameters) { p.TournamentSize = 1 }},
		{"elite width", func(p *Parameters) { p.EliteWidth = 21 }},
		{"crossover strategy", func(p *Parameters) { p.CrossoverStrategy = "uniform" }},
		{"mutation strategy", func(p *Parameters) { p.MutationStrategy = "gaussian" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParameters()
			tt.modify(&params)

			engine, err := New(params, sumCost)
			assert.Nil(t, engine)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := New(testParameters(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDefaultsApplied(t *testing.T) {
	engine, err := New(testParameters(), sumCost)
	require.NoError(t, err)

	p := engine.Parameters()
	assert.Equal(t, 5, p.TournamentSize)
	assert.Equal(t, 1, p.MutationGenes)
	assert.Equal(t, 10, p.EliteWidth)
	assert.Equal(t, CrossoverBlend, p.CrossoverStrategy)
	assert.Equal(t, MutationOffset, p.MutationStrategy)
}

func TestBoundsAndLengthHold(t *testing.T) {
	strategies := []struct {
		crossover CrossoverStrategy
		mutation  MutationStrategy
		integer   bool
	}{
		{CrossoverBlend, MutationOffset, true},
		{CrossoverBlend, MutationOffset, false},
		{CrossoverSinglePoint, MutationBitFlip, true},
		{CrossoverSinglePoint, MutationOffset, false},
		{CrossoverBlend, MutationBitFlip, false},
	}

	for _, s := range strategies {
		params := testParameters()
		params.LowerLim = []float64{-3.5, 0, 10, -100, 0.25}
		params.UpperLim = []float64{2.5, 0, 20, 100, 0.75}
		params.CrossoverStrategy = s.crossover
		params.MutationStrategy = s.mutation
		params.Integer = s.integer
		params.MutationRate = 0.9
		params.MutationGenes = 3

		var engine *Engine
		check := func() {
			chromosomes, _ := engine.Population()
			for _, ch := range chromosomes {
				require.Len(t, ch, params.NumParams)
				for j, v := range ch {
					assert.GreaterOrEqual(t, v, params.LowerLim[j])
					assert.LessOrEqual(t, v, params.UpperLim[j])
				}
			}
		}

		var err error
		engine, err = New(params, negSumCost, WithLogger(quietLogger), WithProgress(func(GenerationReport) { check() }))
		require.NoError(t, err)

		_, err = engine.Optimize(context.Background())
		require.NoError(t, err)
		check()
	}
}

func TestDeterministicWithSeed(t *testing.T) {
	run := func() ([]Chromosome, []float64) {
		engine, err := New(testParameters(), negSumCost, WithLogger(quietLogger))
		require.NoError(t, err)
		_, err = engine.Optimize(context.Background())
		require.NoError(t, err)
		return engine.Population()
	}

	chromosomes1, fitness1 := run()
	chromosomes2, fitness2 := run()

	assert.Equal(t, chromosomes1, chromosomes2)
	assert.Equal(t, fitness1, fitness2)
}

func TestBestFitnessNeverDecreases(t *testing.T) {
	tests := []struct {
		name       string
		eliteWidth int
	}{
		{"full width", 20},
		{"default width", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := testParameters()
			params.MutationRate = 1
			params.EliteWidth = tt.eliteWidth

			engine, err := New(params, negSumCost, WithLogger(quietLogger))
			require.NoError(t, err)
			require.NoError(t, engine.Initialize())

			best := engine.BestFitness()
			for engine.Phase() != PhaseTerminal {
				require.NoError(t, engine.RunGeneration())
				assert.GreaterOrEqual(t, engine.BestFitness(), best)
				best = engine.BestFitness()
			}
		})
	}
}

func TestStatsMeanSkipsNonFiniteFitness(t *testing.T) {
	params := testParameters()
	params.PopulationSize = 4

	calls := 0
	cost := func(ch Chromosome) (float64, error) {
		calls++
		if calls == 1 {
			return math.Inf(1), nil
		}
		return sumCost(ch)
	}

	engine, err := New(params, cost, WithLogger(quietLogger))
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	_, fitness := engine.Population()
	total := 0.0
	for _, f := range fitness[:3] {
		total += f
	}

	stats := engine.Stats()
	assert.True(t, math.IsInf(stats.Worst, -1))
	assert.False(t, math.IsInf(stats.Mean, 0))
	assert.InDelta(t, total/3, stats.Mean, 1e-9)
}

func TestActiveWindowSorted(t *testing.T) {
	engine, err := New(testParameters(), negSumCost, WithLogger(quietLogger))
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())

	for i := 0; i < 5; i++ {
		require.NoError(t, engine.RunGeneration())
		_, fitness := engine.Population()
		for k := 0; k+1 < len(fitness); k++ {
			assert.GreaterOrEqual(t, fitness[k], fitness[k+1])
		}
	}
}

func TestConvergesOnNegativeSum(t *testing.T) {
	params := DefaultParameters()
	params.Seed = 7

	engine, err := New(params, negSumCost, WithLogger(quietLogger))
	require.NoError(t, err)
	require.NoError(t, engine.Initialize())
	initial := engine.BestFitness()

	result, err := engine.Optimize(context.Background())
	require.NoError(t, err)

	assert.Equal(t, params.MaxGenerations, result.Generations)
	assert.Greater(t, result.Fitness, initial)
	assert.Greater(t, result.Fitness, -1000.0)
}

func TestRunGenerationStates(t *testing.T) {
	params := testParameters()
	params.MaxGenerations = 2

	engine, err := New(params, sumCost, WithLogger(quietLogger))
	require.NoError(t, err)

	assert.ErrorIs(t, engine.RunGeneration(), ErrNotStarted)

	require.NoError(t, engine.Initialize())
	require.NoError(t, engine.RunGeneration())
	assert.Equal(t, PhaseFilling, engine.Phase())
	require.NoError(t, engine.RunGeneration())
	assert.Equal(t, PhaseTerminal, engine.Phase())
	assert.ErrorIs(t, engine.RunGeneration(), ErrTerminal)
}

func TestOptimizeStopsOnCancelledContext(t *testing.T) {
	engine, err := New(testParameters(), sumCost, WithLogger(quietLogger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.Optimize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Generations)
	assert.Len(t, result.Chromosome, 5)
}

func TestCoolingAfterMidpoint(t *testing.T) {
	params := testParameters()
	params.MaxGenerations = 4
	params.MutationRate = 0.8
	params.CoolingRate = 0.5

	engine, err := New(params, sumCost, WithLogger(quietLogger))
	require.NoError(t, err)
	_, err = engine.Optimize(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 0.4, engine.MutationRate(), 1e-12)
}

func TestProgressReports(t *testing.T) {
	var reports []GenerationReport

	engine, err := New(testParameters(), negSumCost, WithLogger(quietLogger), WithProgress(func(r GenerationReport) {
		reports = append(reports, r)
	}))
	require.NoError(t, err)
	_, err = engine.Optimize(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 30)
	for i, r := range reports {
		assert.Equal(t, i+1, r.Generation)
		assert.Equal(t, r.BestFitness, r.Stats.Best)
		assert.GreaterOrEqual(t, r.Stats.Best, r.Stats.Mean)
		assert.GreaterOrEqual(t, r.Stats.Mean, r.Stats.Worst)
	}
}

func TestBoundsCopiedAtConstruction(t *testing.T) {
	params := testParameters()
	engine, err := New(params, sumCost, WithLogger(quietLogger))
	require.NoError(t, err)

	params.UpperLim[0] = -1000
	assert.Equal(t, 50.0, engine.Parameters().UpperLim[0])
}
