// Package seed 向数据库中插入用于开发和演示的扰动任务。
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"
)

var sampleTexts = []string{
	"The meeting has been moved to Thursday afternoon because the projector in room 204 is broken.",
	"Please remember to submit your expense reports before the end of the month.",
	"My flight lands at seven in the evening, so I will call you once I reach the hotel.",
	"The patient reported mild headaches and was advised to rest and drink more water.",
	"Our quarterly revenue grew by twelve percent, driven mostly by the new subscription plan.",
	"I left the spare key under the flower pot next to the back door.",
	"The library will be closed on Monday for the annual inventory check.",
	"Could you send me the latest version of the contract before the call tomorrow?",
}

type RunCreator interface {
	CreateDistortionRun(run *domain.DistortionRun) error
}

type SampleText struct {
	Text        string
	NotifyEmail string
}

// RandomSampleTexts 从内置的语料中随机挑选 n 段文本
func RandomSampleTexts(rng *rand.Rand, n int) []SampleText {
	texts := make([]SampleText, n)
	for i := range texts {
		texts[i] = SampleText{Text: sampleTexts[rng.Intn(len(sampleTexts))]}
	}
	return texts
}

/**
 * 读取 CSV 格式的文本
 * 1. 第一行是表头，必须包含 text 列，notify_email 列可选
 * 2. text 为空的行会被跳过
 */
func LoadSampleTexts(r io.Reader) ([]SampleText, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("文件为空")
		}
		return nil, err
	}

	textCol, emailCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "text":
			textCol = i
		case "notify_email":
			emailCol = i
		}
	}
	if textCol < 0 {
		return nil, errors.New("表头中缺少 text 列")
	}

	texts := []SampleText{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("第 %d 行解析失败: %w", line, err)
		}

		if textCol >= len(record) || strings.TrimSpace(record[textCol]) == "" {
			slog.Warn("跳过没有文本的行", "line", line)
			continue
		}

		sample := SampleText{Text: strings.TrimSpace(record[textCol])}
		if emailCol >= 0 && emailCol < len(record) {
			sample.NotifyEmail = strings.TrimSpace(record[emailCol])
		}
		texts = append(texts, sample)
	}

	return texts, nil
}

// RandomParameters 在默认参数附近随机生成一组参数，种子随机
func RandomParameters(rng *rand.Rand, defaults domain.DistortionParameters) domain.DistortionParameters {
	p := defaults
	p.PopulationSize = defaults.PopulationSize + int32(rng.Intn(5))
	p.EliteSize = min(defaults.EliteSize, p.PopulationSize)
	p.MutationRate = 0.1 + rng.Float64()*0.3
	p.Alpha = 0.3 + rng.Float64()*0.4
	p.MinUnchangedWeight = float64(rng.Intn(5) * 10)
	p.Seed = rng.Int63n(1<<31) + 1
	return p
}

// SeedRuns 为每段文本插入一个 pending 任务，返回插入成功的任务
func SeedRuns(repo RunCreator, texts []SampleText, params func() domain.DistortionParameters) []*domain.DistortionRun {
	runs := []*domain.DistortionRun{}
	for _, sample := range texts {
		p := params()
		if err := utils.ValidateDistortionParameters(&p); err != nil {
			slog.Error("参数不合法", "error", err)
			continue
		}

		run := &domain.DistortionRun{
			OriginalText: sample.Text,
			Parameters:   p,
			NotifyEmail:  sample.NotifyEmail,
		}
		if err := repo.CreateDistortionRun(run); err != nil {
			slog.Error("无法插入扰动任务", "error", err)
			continue
		}

		runs = append(runs, run)
	}
	return runs
}
