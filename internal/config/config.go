package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
)

type OpenAIConfig struct {
	APIKey         string `env:"API_KEY,required"`
	BaseURL        string `env:"BASE_URL"` // 为空时使用官方地址
	EmbeddingModel string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	ChatModel      string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens      int    `env:"MAX_TOKENS" envDefault:"100"`
	RequestTimeout int    `env:"REQUEST_TIMEOUT" envDefault:"30"`
}

// DistorterConfig 提交任务时没有指定的参数使用这里的默认值
type DistorterConfig struct {
	PopulationSize     int32   `env:"POPULATION_SIZE" envDefault:"10"`
	EliteSize          int32   `env:"ELITE_SIZE" envDefault:"2"`
	MutationRate       float64 `env:"MUTATION_RATE" envDefault:"0.2"`
	Alpha              float64 `env:"ALPHA" envDefault:"0.5"`
	MinUnchangedWeight float64 `env:"MIN_UNCHANGED_WEIGHT" envDefault:"0"`
	Generations        int32   `env:"GENERATIONS" envDefault:"5"`
	Concurrency        int32   `env:"CONCURRENCY" envDefault:"1"`
	RunTimeout         int     `env:"RUN_TIMEOUT" envDefault:"1800"` // 30 分钟
}

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Server      struct {
		Port            string `env:"PORT" envDefault:"3000"`
		ReadTimeout     int    `env:"READ_TIMEOUT" envDefault:"10"`
		WriteTimeout    int    `env:"WRITE_TIMEOUT" envDefault:"15"`
		IdleTimeout     int    `env:"IDLE_TIMEOUT" envDefault:"60"`
		ShutdownTimeout int    `env:"SHUTDOWN_TIMEOUT" envDefault:"10"`
	} `envPrefix:"SERVER_"`
	Database struct {
		DSN                string `env:"DSN,required"`
		ConnectTimeout     int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		QueryTimeout       int    `env:"QUERY_TIMEOUT" envDefault:"10"`
		TransactionTimeout int    `env:"TRANSACTION_TIMEOUT" envDefault:"20"`
		MaxOpenConns       int    `env:"MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns       int    `env:"MAX_IDLE_CONNS" envDefault:"10"`
		MaxIdleTime        int    `env:"MAX_IDLE_TIME" envDefault:"60"`
	} `envPrefix:"DATABASE_"`
	Admin struct {
		Username string `env:"USERNAME" envDefault:"admin"`
		Password string `env:"PASSWORD,required"`
	} `envPrefix:"ADMIN_"`
	JWT struct {
		Expiration int    `env:"EXPIRATION" envDefault:"336"` // 单位为小时，14 天
		Secret     string `env:"SECRET,required"`
	} `envPrefix:"JWT_"`
	Email struct {
		SMTP struct {
			Username    string `env:"USERNAME,required"`
			Password    string `env:"PASSWORD,required"`
			Host        string `env:"HOST,required"`
			Port        int    `env:"PORT" envDefault:"465"`
			DialTimeout int    `env:"DIAL_TIMEOUT" envDefault:"10"`
		} `envPrefix:"SMTP_"`
	} `envPrefix:"EMAIL_"`
	RabbitMQ struct {
		DSN            string `env:"DSN,required"`
		PublishTimeout int    `env:"PUBLISH_TIMEOUT" envDefault:"10"`
	} `envPrefix:"RABBITMQ_"`
	Redis struct {
		Host                string `env:"HOST" envDefault:"localhost"`
		Port                int    `env:"PORT" envDefault:"6379"`
		Password            string `env:"PASSWORD,required"`
		ConnectTimeout      int    `env:"CONNECT_TIMEOUT" envDefault:"10"`
		OperationExpiration int    `env:"OPERATION_EXPIRATION" envDefault:"10"`
		EmbeddingExpiration int    `env:"EMBEDDING_EXPIRATION" envDefault:"86400"` // 1 天
	} `envPrefix:"REDIS_"`
	Metrics struct {
		Port string `env:"PORT" envDefault:"9090"` // worker 暴露 /metrics 的端口，API 直接挂在自身路由上
	} `envPrefix:"METRICS_"`
	OpenAI    OpenAIConfig    `envPrefix:"OPENAI_"`
	Distorter DistorterConfig `envPrefix:"DISTORTER_"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, firstError(err)
	}

	return cfg, nil
}

// LoadOpenAIConfig 只读取 OPENAI_ 开头的配置，命令行工具不需要数据库等其他依赖
func LoadOpenAIConfig() (*OpenAIConfig, error) {
	cfg := &OpenAIConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "OPENAI_"}); err != nil {
		return nil, firstError(err)
	}

	return cfg, nil
}

func firstError(err error) error {
	aggErr := env.AggregateError{}
	if ok := errors.As(err, &aggErr); ok && len(aggErr.Errors) > 0 {
		// 只返回第一个错误使得日志更清晰
		return aggErr.Errors[0]
	}
	return err
}
