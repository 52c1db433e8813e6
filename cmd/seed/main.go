package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/repository"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/seed"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	var op int
	var n int
	var file string
	var randomSeed int64

	flag.IntVar(&op, "op", 0, "要执行的操作 (1: 插入随机任务, 2: 从 CSV 文件导入任务, 3: 重新投递所有 pending 任务)")
	flag.IntVar(&n, "n", 5, "要插入的任务数量")
	flag.StringVar(&file, "file", "", "CSV 文件路径，表头需要包含 text 列")
	flag.Int64Var(&randomSeed, "seed", 0, "随机种子，为 0 时使用当前时间")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 读取配置文件
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 创建数据库连接池
	dbpool, err := sql.Open("pgx", cfg.Database.DSN)
	if err != nil {
		logger.Error("无法创建数据库连接池", "error", err)
		return
	}
	defer dbpool.Close()

	dbpool.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.Database.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		logger.Error("无法连接到数据库", "error", err)
		return
	}

	// 创建 repository
	repo := repository.NewRepository(cfg, dbpool)

	rng := utils.NewRand(randomSeed)
	defaults := domain.DistortionParameters{
		PopulationSize:     cfg.Distorter.PopulationSize,
		EliteSize:          cfg.Distorter.EliteSize,
		MutationRate:       cfg.Distorter.MutationRate,
		Alpha:              cfg.Distorter.Alpha,
		MinUnchangedWeight: cfg.Distorter.MinUnchangedWeight,
		Generations:        cfg.Distorter.Generations,
	}
	randomParams := func() domain.DistortionParameters { return seed.RandomParameters(rng, defaults) }

	// 执行操作
	switch op {
	case 0:
		slog.Error("未指定操作")
	case 1:
		if n <= 0 {
			slog.Error("请输入合法的任务数量")
			return
		}

		runs := seed.SeedRuns(repo, seed.RandomSampleTexts(rng, n), randomParams)
		slog.Info("插入扰动任务成功", slog.Int("count", len(runs)))
	case 2:
		f, err := os.Open(file)
		if err != nil {
			slog.Error("打开文件失败", "error", err)
			return
		}
		defer f.Close()

		texts, err := seed.LoadSampleTexts(f)
		if err != nil {
			slog.Error("读取文件失败", "error", err)
			return
		}

		runs := seed.SeedRuns(repo, texts, func() domain.DistortionParameters { return defaults })
		slog.Info("导入扰动任务成功", slog.Int("count", len(runs)))
	case 3:
		requeuePendingRuns(cfg, repo)
	default:
		slog.Error("指定的操作非法")
	}
}

// requeuePendingRuns 把所有 pending 状态的任务重新投递到队列中
func requeuePendingRuns(cfg *config.Config, repo *repository.Repository) {
	runs, err := repo.GetAllDistortionRuns()
	if err != nil {
		slog.Error("无法获取扰动任务", "error", err)
		return
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		slog.Error("无法连接到 RabbitMQ", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		slog.Error("无法创建通道", "error", err)
		return
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(domain.DistortionQueue, true, false, false, false, nil); err != nil {
		slog.Error("无法声明队列", "error", err)
		return
	}

	cnt := 0
	for _, run := range runs {
		if run.Status != domain.RunStatusPending {
			continue
		}

		body, err := json.Marshal(domain.DistortionJob{RunID: run.ID})
		if err != nil {
			slog.Error("无法序列化任务", "error", err)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RabbitMQ.PublishTimeout)*time.Second)
		err = ch.PublishWithContext(ctx, "", domain.DistortionQueue, true, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
		cancel()
		if err != nil {
			slog.Error("无法投递任务", "id", run.ID, "error", err)
			continue
		}

		cnt++
	}

	slog.Info("重新投递任务成功", slog.Int("count", cnt))
}
