package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/oracle"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/repository"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/worker"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 加载配置
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法加载配置文件", "error", err)
		return
	}

	/**********************************************
	 * 连接数据库
	 **********************************************/
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	pingCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	if err := dbpool.PingContext(pingCtx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	repo := repository.NewRepository(cfg, dbpool)

	/**********************************************
	 * 连接 redis，用于缓存 embedding
	 **********************************************/
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       0,
	})
	defer rdb.Close()

	redisCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Redis.ConnectTimeout)*time.Second)
	defer cancel()

	if err := rdb.Ping(redisCtx).Err(); err != nil {
		logger.Error("无法连接到 redis", "error", err)
		return
	}

	/**********************************************
	 * 创建评分器
	 **********************************************/
	cache := oracle.NewRedisEmbeddingCache(rdb, time.Duration(cfg.Redis.EmbeddingExpiration)*time.Second)
	scorer, err := oracle.NewOpenAIOracle(&cfg.OpenAI, cache)
	if err != nil {
		logger.Error("无法创建评分器", "error", err)
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", "error", err)
		return
	}
	defer conn.Close()

	// 消费任务和投递邮件分别使用不同的通道
	jobCh, err := conn.Channel()
	if err != nil {
		logger.Error("无法创建通道", "error", err)
		return
	}
	defer jobCh.Close()

	mailCh, err := conn.Channel()
	if err != nil {
		logger.Error("无法创建通道", "error", err)
		return
	}
	defer mailCh.Close()

	for _, queue := range []struct {
		ch   *amqp.Channel
		name string
	}{
		{jobCh, domain.DistortionQueue},
		{mailCh, domain.MailQueue},
	} {
		if _, err := queue.ch.QueueDeclare(queue.name, true, false, false, false, nil); err != nil {
			logger.Error("无法声明队列", "queue", queue.name, "error", err)
			return
		}
	}

	// 一次只取一个任务，单个任务就会占满 OpenAI 的请求配额
	if err := jobCh.Qos(1, 0, false); err != nil {
		logger.Error("无法设置预取数量", "error", err)
		return
	}

	msgs, err := jobCh.Consume(
		domain.DistortionQueue, // 队列
		"",                     // 消费者标识，由 RabbitMQ 自动分配
		false,                  // 手动确认
		false,                  // 不独占队列
		false,                  // RabbitMQ 不支持 noLocal
		false,                  // 等待 RabbitMQ 响应
		nil,                    // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", "error", err)
		return
	}

	w := worker.New(cfg, repo, scorer, mailCh)

	/**********************************************
	 * 暴露 prometheus 指标
	 **********************************************/
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Metrics.Port),
		Handler:     metricsMux,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	go func() {
		logger.Info("正在启动指标服务...", "port", cfg.Metrics.Port)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("无法启动指标服务", "error", err)
		}
	}()

	// 监听 CTRL+C
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// 用于关闭 goroutine 的上下文，取消时正在执行的任务会被标记为失败
	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Error("消息通道已关闭")
					return
				}

				logger.Info("收到任务", "message", string(msg.Body))
				if err := w.Process(ctx, msg.Body); err != nil {
					logger.Error("无法处理任务", "error", err)
					// 格式错误的消息重新入队也没有意义
					_ = msg.Nack(false, !errors.Is(err, worker.ErrMalformedJob))
					continue
				}

				_ = msg.Ack(false)
			}
		}
	}()

	logger.Info("等待任务...（按 CTRL+C 退出）")
	<-sigChan

	logger.Info("正在关闭 distortion worker...")
	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭指标服务失败", "error", err)
	}
	logger.Info("distortion worker 已成功关闭")
}
