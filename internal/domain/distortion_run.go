package domain

import "time"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// DistortionParameters 一次优化所使用的参数
type DistortionParameters struct {
	PopulationSize     int32   `json:"populationSize"`
	EliteSize          int32   `json:"eliteSize"`
	MutationRate       float64 `json:"mutationRate"`
	Alpha              float64 `json:"alpha"`
	MinUnchangedWeight float64 `json:"minUnchangedWeight"`
	Generations        int32   `json:"generations"`
	Seed               int64   `json:"seed"`
}

type Convergence struct {
	BestFitness []float64 `json:"bestFitness"`
	AvgFitness  []float64 `json:"avgFitness"`
	Diversity   []float64 `json:"diversity"`
}

// DistortionResult 优化得到的最佳个体以及收敛历史
type DistortionResult struct {
	DistortedText  string      `json:"distortedText"`
	PrivacyScore   float64     `json:"privacyScore"`
	UsabilityScore float64     `json:"usabilityScore"`
	Fitness        float64     `json:"fitness"`
	Weights        Weights     `json:"weights"`
	Convergence    Convergence `json:"convergence"`
}

type DistortionRun struct {
	ID           int64                `json:"id"`
	OriginalText string               `json:"originalText"`
	Parameters   DistortionParameters `json:"parameters"`
	NotifyEmail  string               `json:"notifyEmail"`
	Status       RunStatus            `json:"status"`
	Result       *DistortionResult    `json:"result"` // 只有 completed 的任务才有结果
	ErrorMessage string               `json:"errorMessage"`
	CreatedAt    time.Time            `json:"createdAt"`
	FinishedAt   *time.Time           `json:"finishedAt"`
	Version      int32                `json:"-"`
}

// DistortionJob 投递到 distortion_queue 中的消息
type DistortionJob struct {
	RunID int64 `json:"runID"`
}
