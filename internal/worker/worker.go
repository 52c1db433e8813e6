// Package worker 执行 distortion_queue 中的扰动任务，并在任务结束后投递通知邮件。
package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/distorter"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

var ErrMalformedJob = errors.New("无法解析任务消息")

// RunStore 由 *repository.Repository 实现
type RunStore interface {
	GetDistortionRunByID(id int64) (*domain.DistortionRun, error)
	MarkDistortionRunRunning(run *domain.DistortionRun) error
	CompleteDistortionRun(run *domain.DistortionRun, result *domain.DistortionResult) error
	FailDistortionRun(run *domain.DistortionRun, message string) error
	ResetDistortionRun(run *domain.DistortionRun) error
}

const storeAttempts = 3

// Publisher 由 *amqp.Channel 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Worker struct {
	cfg           *config.Config
	store         RunStore
	oracle        distorter.Oracle
	mailChannel   Publisher
	retryInterval time.Duration // 写数据库失败后重试的间隔
}

func New(cfg *config.Config, store RunStore, oracle distorter.Oracle, mailCh Publisher) *Worker {
	return &Worker{
		cfg:           cfg,
		store:         store,
		oracle:        oracle,
		mailChannel:   mailCh,
		retryInterval: time.Second,
	}
}

/**
 * 处理一条任务消息
 * 1. 任务不存在或者不是 pending 状态时直接跳过，重复投递的消息不会被执行两次
 * 2. 优化失败时任务被标记为 failed，失败原因写入 error_message
 * 3. 只有读写数据库失败时才返回错误
 * 4. 结果多次写入失败时任务会被放回 pending，重新投递的消息可以再次执行它
 */
func (w *Worker) Process(ctx context.Context, body []byte) error {
	var job domain.DistortionJob
	if err := json.Unmarshal(body, &job); err != nil {
		skippedJobs.WithLabelValues("malformed").Inc()
		return fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}

	run, err := w.store.GetDistortionRunByID(job.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("任务不存在，跳过", "id", job.RunID)
			skippedJobs.WithLabelValues("missing").Inc()
			return nil
		}
		return err
	}

	if run.Status != domain.RunStatusPending {
		slog.Warn("任务已经被处理过，跳过", "id", run.ID, "status", run.Status)
		skippedJobs.WithLabelValues("not_pending").Inc()
		return nil
	}

	if err := w.store.MarkDistortionRunRunning(run); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			slog.Warn("任务已经被其他 worker 领取，跳过", "id", run.ID)
			skippedJobs.WithLabelValues("claimed").Inc()
			return nil
		}
		return err
	}

	slog.Info("开始执行扰动任务", "id", run.ID, "generations", run.Parameters.Generations)

	start := time.Now()
	result, trainErr := w.train(ctx, run)
	var persist func() error
	if trainErr != nil {
		slog.Error("扰动任务执行失败", "id", run.ID, "error", trainErr)
		persist = func() error { return w.store.FailDistortionRun(run, trainErr.Error()) }
	} else {
		slog.Info("扰动任务执行完成", "id", run.ID, "fitness", result.Fitness)
		persist = func() error { return w.store.CompleteDistortionRun(run, result) }
	}

	if err := w.retry(persist); err != nil {
		slog.Error("无法保存任务结果，任务将被放回队列", "id", run.ID, "error", err)
		if resetErr := w.retry(func() error { return w.store.ResetDistortionRun(run) }); resetErr != nil {
			slog.Error("无法把任务恢复为 pending 状态", "id", run.ID, "error", resetErr)
		}
		return err
	}

	runsTotal.WithLabelValues(string(run.Status)).Inc()
	runDuration.WithLabelValues(string(run.Status)).Observe(time.Since(start).Seconds())

	if run.NotifyEmail != "" {
		// 邮件发送失败不影响任务本身的结果
		if err := w.publishFinishedMail(run); err != nil {
			slog.Error("无法投递通知邮件", "id", run.ID, "error", err)
		}
	}

	return nil
}

func (w *Worker) retry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= storeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < storeAttempts {
			slog.Warn("写入数据库失败，稍后重试", "attempt", attempt, "error", err)
			time.Sleep(w.retryInterval)
		}
	}
	return err
}

func (w *Worker) train(ctx context.Context, run *domain.DistortionRun) (*domain.DistortionResult, error) {
	params := distorter.ParametersFromDomain(run.Parameters, w.cfg.Distorter.Concurrency)
	d, err := distorter.New(params, w.oracle)
	if err != nil {
		return nil, err
	}

	if w.cfg.Distorter.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(w.cfg.Distorter.RunTimeout)*time.Second)
		defer cancel()
	}

	return d.Train(ctx, run.OriginalText)
}

func (w *Worker) publishFinishedMail(run *domain.DistortionRun) error {
	data := domain.DistortionFinishedMailData{
		RunID:        run.ID,
		Status:       string(run.Status),
		ErrorMessage: run.ErrorMessage,
	}
	if run.Result != nil {
		data.DistortedText = run.Result.DistortedText
		data.PrivacyScore = run.Result.PrivacyScore
		data.UsabilityScore = run.Result.UsabilityScore
		data.Fitness = run.Result.Fitness
	}

	mailData, err := json.Marshal(domain.MailMessage{
		Type: domain.MailTypeDistortionFinished,
		To:   run.NotifyEmail,
		Data: data,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.cfg.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	return w.mailChannel.PublishWithContext(
		ctx,
		"",
		domain.MailQueue,
		true,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        mailData,
		},
	)
}
