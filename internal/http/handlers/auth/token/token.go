// Package token реализует HTTP-обработчик выпуска JWT токена для сервисных
// клиентов (бот, внутренние панели).
//
// Handler принимает идентификатор пользователя и общий сервисный секрет,
// определяет роль пользователя и выдает подписанный токен. Эндпоинт не
// является пользовательским логином: им пользуются доверенные клиенты,
// знающие секрет.
package token

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/daryveda/gifts-entitlement/internal/http/response"
	"github.com/daryveda/gifts-entitlement/internal/lib/jwt"
	"github.com/daryveda/gifts-entitlement/internal/lib/sl"
)

// Handler управляет HTTP-запросами на выпуск токенов.
type Handler struct {
	log           *slog.Logger
	service       Service
	maker         jwt.Maker
	validate      *validator.Validate
	serviceSecret string
}

// Service описывает интерфейс проверки роли пользователя.
type Service interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// New создает новый Handler с переданными логгером, сервисом и генератором токенов.
func New(log *slog.Logger, service Service, maker jwt.Maker, serviceSecret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		maker:         maker,
		validate:      validator.New(),
		serviceSecret: serviceSecret,
	}
}

// Request описывает тело запроса на выпуск токена.
type Request struct {
	UserID int64  `json:"user_id" validate:"required,gt=0"`
	Secret string `json:"secret" validate:"required"`
}

// ServeHTTP godoc
// @Summary Выпустить JWT токен
// @Description Выдает токен с ролью пользователя доверенному клиенту по сервисному секрету.
// @Tags Auth
// @Accept  json
// @Produce  json
// @Param request body Request true "Пользователь и сервисный секрет"
// @Success 200 {object} map[string]any "Подписанный токен и роль"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Неверный сервисный секрет"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /auth/token [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.token"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Secret), []byte(h.serviceSecret)) != 1 {
		log.Error("invalid service secret")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("invalid service secret"))
		return
	}

	isAdmin, err := h.service.IsAdmin(r.Context(), req.UserID)
	if err != nil {
		log.Error("failed to resolve user role", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not issue token"))
		return
	}

	role := jwt.RoleUser
	if isAdmin {
		role = jwt.RoleAdmin
	}

	tokenStr, err := h.maker.GenerateToken(req.UserID, role)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not issue token"))
		return
	}

	log.Info("token issued", slog.Int64("user_id", req.UserID), slog.String("role", role))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": tokenStr,
		"role":  role,
	}))
}
