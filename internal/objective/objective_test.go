package objective

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

func TestOptimumValues(t *testing.T) {
	tests := []struct {
		name string
		x    optimizer.Chromosome
	}{
		{"sum", optimizer.Chromosome{0, 0, 0}},
		{"sphere", optimizer.Chromosome{0, 0, 0}},
		{"rastrigin", optimizer.Chromosome{0, 0, 0}},
		{"rosenbrock", optimizer.Chromosome{1, 1, 1}},
		{"ackley", optimizer.Chromosome{0, 0, 0}},
		{"griewank", optimizer.Chromosome{0, 0, 0}},
		{"schwefel", optimizer.Chromosome{420.9687, 420.9687}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := Lookup(tt.name)
			require.NoError(t, err)
			assert.InDelta(t, o.Optimum, o.Eval(tt.x), 1e-3)
		})
	}
}

func TestEvalAwayFromOptimum(t *testing.T) {
	sphere, err := Lookup("sphere")
	require.NoError(t, err)
	assert.Equal(t, 14.0, sphere.Eval(optimizer.Chromosome{1, 2, 3}))

	rastrigin, err := Lookup("rastrigin")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rastrigin.Eval(optimizer.Chromosome{1}), 1e-9)

	rosenbrock, err := Lookup("rosenbrock")
	require.NoError(t, err)
	assert.Equal(t, 1.0, rosenbrock.Eval(optimizer.Chromosome{0, 0}))
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownObjective)
}

func TestAllSortedByName(t *testing.T) {
	names := Names()
	require.NotEmpty(t, names)
	assert.IsIncreasing(t, names)
	assert.Len(t, All(), len(names))
}

func TestParseGoal(t *testing.T) {
	goal, err := ParseGoal("maximize")
	require.NoError(t, err)
	assert.Equal(t, GoalMaximize, goal)

	goal, err = ParseGoal("")
	require.NoError(t, err)
	assert.Equal(t, GoalMinimize, goal)

	_, err = ParseGoal("sideways")
	assert.ErrorIs(t, err, ErrUnknownGoal)
}

func TestCostFuncGoal(t *testing.T) {
	o, err := Lookup("sum")
	require.NoError(t, err)

	x := optimizer.Chromosome{1, 2, 3}

	maximize, err := o.CostFunc(GoalMaximize)
	require.NoError(t, err)
	fitness, err := maximize(x)
	require.NoError(t, err)
	assert.Equal(t, 6.0, fitness)

	minimize, err := o.CostFunc(GoalMinimize)
	require.NoError(t, err)
	fitness, err = minimize(x)
	require.NoError(t, err)
	assert.Equal(t, -6.0, fitness)
	assert.Equal(t, 6.0, ObjectiveValue(GoalMinimize, fitness))

	_, err = o.CostFunc(Goal("up"))
	assert.ErrorIs(t, err, ErrUnknownGoal)
}

func TestBounds(t *testing.T) {
	o, err := Lookup("rastrigin")
	require.NoError(t, err)

	lower, upper := o.Bounds(3)
	assert.Equal(t, []float64{-5.12, -5.12, -5.12}, lower)
	assert.Equal(t, []float64{5.12, 5.12, 5.12}, upper)
}

func TestMinimizeWithEngine(t *testing.T) {
	o, err := Lookup("sphere")
	require.NoError(t, err)

	cost, err := o.CostFunc(GoalMinimize)
	require.NoError(t, err)

	lower, upper := o.Bounds(3)
	engine, err := optimizer.New(optimizer.Parameters{
		NumParams:      3,
		LowerLim:       lower,
		UpperLim:       upper,
		PopulationSize: 40,
		MaxGenerations: 80,
		CrossoverRate:  0.7,
		MutationRate:   0.3,
		Seed:           11,
	}, cost)
	require.NoError(t, err)

	result, err := engine.Optimize(context.Background())
	require.NoError(t, err)

	value := ObjectiveValue(GoalMinimize, result.Fitness)
	assert.False(t, math.IsNaN(value))
	assert.Less(t, value, 100.0)
}
