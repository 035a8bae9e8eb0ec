package status

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/daryveda/gifts-entitlement/internal/models"
)

// MockService реализует интерфейс status.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) SubscriptionStatus(ctx context.Context, userID int64) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if res := args.Get(0); res != nil {
		return res.(*models.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockService) HasFeatureAccess(ctx context.Context, userID int64, requiredLevel string) (bool, error) {
	args := m.Called(ctx, userID, requiredLevel)
	return args.Bool(0), args.Error(1)
}

func TestStatusHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	endDate := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		userIDParam    string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:        "активная подписка",
			userIDParam: "100",
			setupMock: func(m *MockService) {
				m.On("SubscriptionStatus", mock.Anything, int64(100)).
					Return(&models.Subscription{Active: true, Type: "pro_month", Level: "pro", EndDate: &endDate}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"level":"pro"`,
		},
		{
			name:        "администратор получает уровень orden",
			userIDParam: "1",
			setupMock: func(m *MockService) {
				m.On("SubscriptionStatus", mock.Anything, int64(1)).
					Return(&models.Subscription{Active: true, Type: "admin", Level: "orden"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"type":"admin"`,
		},
		{
			name:        "проверка доступа к уровню",
			userIDParam: "100",
			query:       "?level=orden",
			setupMock: func(m *MockService) {
				m.On("SubscriptionStatus", mock.Anything, int64(100)).
					Return(&models.Subscription{Active: true, Type: "pro_month", Level: "pro"}, nil)
				m.On("HasFeatureAccess", mock.Anything, int64(100), "orden").
					Return(false, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"has_access":false`,
		},
		{
			name:           "некорректный user_id в URL",
			userIDParam:    "abc",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"failed to decode user_id from url"`,
		},
		{
			name:        "ошибка сервиса",
			userIDParam: "100",
			setupMock: func(m *MockService) {
				m.On("SubscriptionStatus", mock.Anything, int64(100)).
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"could not get subscription status"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/subscriptions/"+tt.userIDParam+"/status"+tt.query, nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("user_id", tt.userIDParam)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
