package handler

import (
	"context"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/metrics"
)

// Store 是 handler 用到的持久化操作，由 repository.Repository 实现
type Store interface {
	GetUserByID(id int64) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	GetAllUsers() ([]*domain.User, error)
	CreateUser(user *domain.User) error
	UpdateUser(user *domain.User) error

	CreateRun(run *domain.OptimizationRun) error
	GetRunByID(id int64) (*domain.OptimizationRun, error)
	GetAllRuns() ([]*domain.OptimizationRun, error)
	GetRunsByUserID(userID int64) ([]*domain.OptimizationRun, error)
	DeleteRun(id int64) error
	GetGenerationStats(runID int64) ([]*domain.GenerationStat, error)
}

type ProgressStore interface {
	Get(ctx context.Context, runID int64) (*domain.RunProgress, error)
	Delete(ctx context.Context, runID int64) error
}

type Publisher interface {
	Publish(ctx context.Context, queue string, v any) (string, error)
}

type Handler struct {
	validate   *validator.Validate
	config     *config.Config
	store      Store
	translator ut.Translator
	publisher  Publisher
	progress   ProgressStore

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, store Store, publisher Publisher, progress ProgressStore) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:   validate,
		config:     cfg,
		store:      store,
		translator: trans,
		publisher:  publisher,
		progress:   progress,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Handle("/metrics", metrics.Handler())

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 内置目标函数不需要登录即可查看
	h.Mux.Get("/objectives", h.GetObjectives)

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/my-info", func(r chi.Router) {
			r.Use(h.myInfo)
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Post("/", h.CreateUser)
			r.Get("/", h.GetAllUserInfo)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.userInfo)
				r.Get("/", h.GetUserInfo)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Patch("/", h.UpdateUser)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole([]domain.Role{domain.RoleAdmin})).Patch("/password", h.UpdateUserPassword)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Use(h.myInfo)
			r.With(h.preventInactiveUser).Post("/", h.CreateRun)
			r.Get("/", h.GetRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.run)
				r.Get("/", h.GetRun)
				r.Get("/progress", h.GetRunProgress)
				r.Get("/generations", h.GetRunGenerations)
				r.Delete("/", h.DeleteRun)
			})
		})
	})
}
