package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/distortion"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"
)

func (h *Handler) PreviewDistortion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    string         `json:"text" validate:"required"`
		Weights domain.Weights `json:"weights"`
		Seed    int64          `json:"seed"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := utils.ValidateWeights(req.Weights); err != nil {
		h.badRequest(w, r, err)
		return
	}

	rng := utils.NewRand(req.Seed)
	labels, err := distortion.Assign(req.Text, req.Weights, rng)
	if err != nil {
		h.badRequest(w, r, err)
		return
	}
	distorted := distortion.Render(req.Text, labels, rng)

	percentages, err := req.Weights.Percentages()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	counts := make(map[string]int, domain.NumCategories)
	for _, c := range domain.AllCategories() {
		counts[c.String()] = 0
	}
	for i, r := range []rune(req.Text) {
		// 大写字母不参与分配
		if unicode.IsUpper(r) {
			continue
		}
		counts[labels[i].String()]++
	}

	h.successResponse(w, r, "生成扰动文本成功", map[string]any{
		"distortedText":  distorted,
		"weights":        percentages,
		"categoryCounts": counts,
	})
}

func (h *Handler) CreateDistortionRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text               string   `json:"text" validate:"required"`
		NotifyEmail        string   `json:"notifyEmail" validate:"omitempty,email"`
		PopulationSize     *int32   `json:"populationSize"`
		EliteSize          *int32   `json:"eliteSize"`
		MutationRate       *float64 `json:"mutationRate"`
		Alpha              *float64 `json:"alpha"`
		MinUnchangedWeight *float64 `json:"minUnchangedWeight"`
		Generations        *int32   `json:"generations"`
		Seed               int64    `json:"seed"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 没有指定的参数使用配置中的默认值
	defaults := h.config.Distorter
	params := domain.DistortionParameters{
		PopulationSize:     valueOr(req.PopulationSize, defaults.PopulationSize),
		EliteSize:          valueOr(req.EliteSize, defaults.EliteSize),
		MutationRate:       valueOr(req.MutationRate, defaults.MutationRate),
		Alpha:              valueOr(req.Alpha, defaults.Alpha),
		MinUnchangedWeight: valueOr(req.MinUnchangedWeight, defaults.MinUnchangedWeight),
		Generations:        valueOr(req.Generations, defaults.Generations),
		Seed:               req.Seed,
	}
	if err := utils.ValidateDistortionParameters(&params); err != nil {
		h.badRequest(w, r, err)
		return
	}

	run := &domain.DistortionRun{
		OriginalText: req.Text,
		Parameters:   params,
		NotifyEmail:  req.NotifyEmail,
	}
	if err := h.repository.CreateDistortionRun(run); err != nil {
		var pgErr *pgconn.PgError
		switch {
		case errors.As(err, &pgErr) && pgErr.ConstraintName == "distortion_runs_original_text_check":
			h.errorResponse(w, r, "文本过长")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	// 投递到消息队列中，由 worker 执行优化
	if err := h.publishDistortionJob(domain.DistortionJob{RunID: run.ID}); err != nil {
		// 没有投递成功的任务永远不会被执行，直接删掉
		if delErr := h.repository.DeleteDistortionRun(run.ID); delErr != nil {
			slog.Error("无法删除未投递的任务", "id", run.ID, "error", delErr)
		}
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "创建扰动任务成功", run)
}

func (h *Handler) publishDistortionJob(job domain.DistortionJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	return h.jobChannel.PublishWithContext(
		ctx,
		"",
		domain.DistortionQueue,
		true,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func (h *Handler) GetAllDistortionRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.repository.GetAllDistortionRuns()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取扰动任务列表成功", runs)
}

func (h *Handler) GetDistortionRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(DistortionRunCtx).(*domain.DistortionRun)

	h.successResponse(w, r, "获取扰动任务成功", run)
}

func (h *Handler) DeleteDistortionRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(DistortionRunCtx).(*domain.DistortionRun)

	if run.Status == domain.RunStatusRunning {
		h.errorResponse(w, r, "任务正在运行，无法删除")
		return
	}

	if err := h.repository.DeleteDistortionRun(run.ID); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "任务不存在")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.successResponse(w, r, "删除扰动任务成功", nil)
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}
