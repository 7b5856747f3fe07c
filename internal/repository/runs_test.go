package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/optimizer"
)

// fakeRow 模拟 database/sql 的扫描行为
type fakeRow struct {
	values []any
	err    error
}

func (f *fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.values) {
		return errors.New("列数不匹配")
	}

	for i, d := range dest {
		if scanner, ok := d.(sql.Scanner); ok {
			if err := scanner.Scan(f.values[i]); err != nil {
				return err
			}
			continue
		}

		dv := reflect.ValueOf(d).Elem()
		dv.Set(reflect.ValueOf(f.values[i]).Convert(dv.Type()))
	}

	return nil
}

func runRow(t *testing.T, bestFitness any, startedAt any) *fakeRow {
	t.Helper()

	params := optimizer.DefaultParameters()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	return &fakeRow{values: []any{
		int64(7),
		int64(3),
		"demo",
		"sum",
		"minimize",
		raw,
		"running",
		nil,
		bestFitness,
		nil,
		12,
		"",
		time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		startedAt,
		nil,
		int32(2),
	}}
}

func TestScanRunDecodesParameters(t *testing.T) {
	started := time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC)

	run, err := scanRun(pgtype.NewMap(), runRow(t, -42.5, started))
	require.NoError(t, err)

	assert.Equal(t, int64(7), run.ID)
	assert.Equal(t, domain.RunStatusRunning, run.Status)
	assert.Equal(t, optimizer.DefaultParameters(), run.Parameters)
	assert.Nil(t, run.BestChromosome)
	require.NotNil(t, run.BestFitness)
	assert.Equal(t, domain.Fitness(-42.5), *run.BestFitness)
	assert.Nil(t, run.BestObjective)
	require.NotNil(t, run.StartedAt)
	assert.Equal(t, started, *run.StartedAt)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, 12, run.Generations)
}

func TestScanRunNullColumns(t *testing.T) {
	run, err := scanRun(pgtype.NewMap(), runRow(t, nil, nil))
	require.NoError(t, err)

	assert.Nil(t, run.BestFitness)
	assert.Nil(t, run.StartedAt)
}

func TestScanRunPropagatesErrNoRows(t *testing.T) {
	_, err := scanRun(pgtype.NewMap(), &fakeRow{err: sql.ErrNoRows})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNullFitness(t *testing.T) {
	assert.False(t, nullFitness(nil).Valid)

	f := domain.Fitness(3)
	assert.Equal(t, sql.NullFloat64{Float64: 3, Valid: true}, nullFitness(&f))
}
