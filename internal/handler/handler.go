package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Repository 是 handler 需要的持久化操作，由 *repository.Repository 实现
type Repository interface {
	CreateDistortionRun(run *domain.DistortionRun) error
	GetDistortionRunByID(id int64) (*domain.DistortionRun, error)
	GetAllDistortionRuns() ([]*domain.DistortionRun, error)
	DeleteDistortionRun(id int64) error
}

// Publisher 由 *amqp.Channel 实现
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type Handler struct {
	validate          *validator.Validate
	config            *config.Config
	repository        Repository
	translator        ut.Translator
	jobChannel        Publisher
	adminPasswordHash []byte

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo Repository, jobCh Publisher) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	// 管理员密码来自环境变量，启动时计算一次哈希，登录时与哈希比较
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	return &Handler{
		validate:          validate,
		config:            cfg,
		repository:        repo,
		translator:        trans,
		jobChannel:        jobCh,
		adminPasswordHash: passwordHash,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Handle("/metrics", promhttp.Handler())

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/distortions", func(r chi.Router) {
			r.Post("/", h.CreateDistortionRun)
			r.Get("/", h.GetAllDistortionRuns)
			r.Post("/preview", h.PreviewDistortion)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.distortionRun)
				r.Get("/", h.GetDistortionRun)
				r.Delete("/", h.DeleteDistortionRun)
			})
		})
	})
}
