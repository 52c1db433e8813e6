package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

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

	for i, v := range f.values {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int32:
			*d = v.(int32)
		case *string:
			*d = v.(string)
		case *domain.RunStatus:
			*d = domain.RunStatus(v.(string))
		case *[]byte:
			if v == nil {
				*d = nil
			} else {
				*d = v.([]byte)
			}
		case *time.Time:
			*d = v.(time.Time)
		case *sql.NullTime:
			if v == nil {
				*d = sql.NullTime{}
			} else {
				*d = sql.NullTime{Time: v.(time.Time), Valid: true}
			}
		default:
			return errors.New("不支持的类型")
		}
	}
	return nil
}

func TestScanDistortionRun_Pending(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	row := &fakeRow{values: []any{
		int64(7),
		"Hello world",
		[]byte(`{"populationSize":10,"eliteSize":2,"mutationRate":0.2,"alpha":0.5,"minUnchangedWeight":30,"generations":5,"seed":42}`),
		"",
		"pending",
		nil,
		"",
		createdAt,
		nil,
		int32(1),
	}}

	run, err := scanDistortionRun(row)
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, int32(10), run.Parameters.PopulationSize)
	assert.Equal(t, 30.0, run.Parameters.MinUnchangedWeight)
	assert.Equal(t, int64(42), run.Parameters.Seed)
	assert.Nil(t, run.Result)
	assert.Nil(t, run.FinishedAt)
	assert.Equal(t, createdAt, run.CreatedAt)
}

func TestScanDistortionRun_Completed(t *testing.T) {
	finishedAt := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	row := &fakeRow{values: []any{
		int64(8),
		"Hello world",
		[]byte(`{"populationSize":4,"eliteSize":1,"mutationRate":0.2,"alpha":0.5,"minUnchangedWeight":0,"generations":1,"seed":1}`),
		"someone@example.com",
		"completed",
		[]byte(`{"distortedText":"H3llo world","privacyScore":0.2,"usabilityScore":0.9,"fitness":0.55,"weights":{"unchanged":80,"symbol":20},"convergence":{"bestFitness":[0.5,0.55],"avgFitness":[0.4,0.5],"diversity":[3,2]}}`),
		"",
		finishedAt.Add(-time.Hour),
		finishedAt,
		int32(3),
	}}

	run, err := scanDistortionRun(row)
	require.NoError(t, err)
	require.NotNil(t, run.Result)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, finishedAt, *run.FinishedAt)
	assert.Equal(t, "H3llo world", run.Result.DistortedText)
	assert.Equal(t, 80.0, run.Result.Weights[domain.CategoryUnchanged])
	assert.Equal(t, 20.0, run.Result.Weights[domain.CategorySymbol])
	assert.Equal(t, []float64{0.5, 0.55}, run.Result.Convergence.BestFitness)
}

func TestScanDistortionRun_Errors(t *testing.T) {
	_, err := scanDistortionRun(&fakeRow{err: sql.ErrNoRows})
	require.ErrorIs(t, err, sql.ErrNoRows)

	row := &fakeRow{values: []any{
		int64(1), "x", []byte(`not json`), "", "pending", nil, "", time.Now(), nil, int32(1),
	}}
	_, err = scanDistortionRun(row)
	require.Error(t, err)
}
