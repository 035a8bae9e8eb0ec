package redeem

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/daryveda/gifts-entitlement/internal/services"
	"github.com/daryveda/gifts-entitlement/internal/storage"
)

// MockService реализует интерфейс redeem.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Redeem(ctx context.Context, userID int64, code string) (*services.RedeemResult, error) {
	args := m.Called(ctx, userID, code)
	if res := args.Get(0); res != nil {
		return res.(*services.RedeemResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestRedeemHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная активация промокода на скидку",
			body: `{"user_id": 100, "code": "GIFTXYZ23456"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, int64(100), "GIFTXYZ23456").
					Return(&services.RedeemResult{PromoType: "discount", DiscountPercent: 25}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"discount_percent":25`,
		},
		{
			name:           "некорректный JSON",
			body:           `{"user_id": `,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"invalid request body"`,
		},
		{
			name:           "код с недопустимыми символами",
			body:           `{"user_id": 100, "code": "ABC-123"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Code can contain only numbers and letters`,
		},
		{
			name: "промокод не найден",
			body: `{"user_id": 100, "code": "MISSING12345"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, int64(100), "MISSING12345").
					Return(nil, storage.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `"promocode not found or inactive"`,
		},
		{
			name: "повторная активация тем же пользователем",
			body: `{"user_id": 100, "code": "GIFTXYZ23456"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, int64(100), "GIFTXYZ23456").
					Return(nil, storage.ErrAlreadyRedeemed)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `"promocode already redeemed by this user"`,
		},
		{
			name: "лимит использований исчерпан",
			body: `{"user_id": 100, "code": "GIFTXYZ23456"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, int64(100), "GIFTXYZ23456").
					Return(nil, storage.ErrExhausted)
			},
			expectedStatus: http.StatusGone,
			expectedBody:   `"promocode usage limit reached"`,
		},
		{
			name: "ошибка хранилища",
			body: `{"user_id": 100, "code": "GIFTXYZ23456"}`,
			setupMock: func(m *MockService) {
				m.On("Redeem", mock.Anything, int64(100), "GIFTXYZ23456").
					Return(nil, errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"could not redeem promocode"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/promocodes/redeem", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
