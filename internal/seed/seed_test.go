package seed

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"
)

type fakeCreator struct {
	runs    []*domain.DistortionRun
	failAll bool
}

func (f *fakeCreator) CreateDistortionRun(run *domain.DistortionRun) error {
	if f.failAll {
		return errors.New("database is down")
	}
	run.ID = int64(len(f.runs) + 1)
	run.Status = domain.RunStatusPending
	f.runs = append(f.runs, run)
	return nil
}

var defaults = domain.DistortionParameters{
	PopulationSize: 10,
	EliteSize:      2,
	MutationRate:   0.2,
	Alpha:          0.5,
	Generations:    5,
}

func TestLoadSampleTexts(t *testing.T) {
	data := "notify_email,text\n" +
		"a@example.com,first text\n" +
		",  \n" +
		",\"second, with comma\"\n"

	texts, err := LoadSampleTexts(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, texts, 2)
	assert.Equal(t, SampleText{Text: "first text", NotifyEmail: "a@example.com"}, texts[0])
	assert.Equal(t, SampleText{Text: "second, with comma"}, texts[1])
}

func TestLoadSampleTexts_Errors(t *testing.T) {
	_, err := LoadSampleTexts(strings.NewReader(""))
	require.Error(t, err)

	_, err = LoadSampleTexts(strings.NewReader("content\nhello\n"))
	require.Error(t, err)
}

func TestRandomParameters_AreValid(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := RandomParameters(rng, defaults)
		require.NoError(t, utils.ValidateDistortionParameters(&p))
		assert.NotZero(t, p.Seed)
		assert.Equal(t, defaults.Generations, p.Generations)
	}
}

func TestSeedRuns(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	repo := &fakeCreator{}

	texts := RandomSampleTexts(rng, 3)
	runs := SeedRuns(repo, texts, func() domain.DistortionParameters { return RandomParameters(rng, defaults) })
	require.Len(t, runs, 3)
	for _, run := range runs {
		assert.NotEmpty(t, run.OriginalText)
		assert.Equal(t, domain.RunStatusPending, run.Status)
	}

	invalid := defaults
	invalid.PopulationSize = 0
	runs = SeedRuns(repo, texts, func() domain.DistortionParameters { return invalid })
	assert.Empty(t, runs)

	runs = SeedRuns(&fakeCreator{failAll: true}, texts, func() domain.DistortionParameters { return defaults })
	assert.Empty(t, runs)
}
