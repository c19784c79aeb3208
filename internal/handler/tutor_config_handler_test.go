package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/handler"
	"github.com/llteacher/llteacher-api/internal/models"
	"github.com/llteacher/llteacher-api/internal/service"
)

type stubTutorConfigService struct {
	configs      []dto.TutorConfigResponse
	config       dto.TutorConfigResponse
	tutorResult  dto.TutorResponseResult
	err          error
	lastTestBody dto.TutorConfigTestRequest
}

func (s *stubTutorConfigService) List(context.Context) ([]dto.TutorConfigResponse, error) {
	return s.configs, s.err
}

func (s *stubTutorConfigService) Get(context.Context, uuid.UUID) (dto.TutorConfigResponse, error) {
	return s.config, s.err
}

func (s *stubTutorConfigService) Create(context.Context, dto.TutorConfigCreateRequest) (dto.TutorConfigResponse, error) {
	return s.config, s.err
}

func (s *stubTutorConfigService) Update(context.Context, uuid.UUID, dto.TutorConfigUpdateRequest) (dto.TutorConfigResponse, error) {
	return s.config, s.err
}

func (s *stubTutorConfigService) Delete(context.Context, uuid.UUID) error {
	return s.err
}

func (s *stubTutorConfigService) Test(_ context.Context, _ uuid.UUID, payload dto.TutorConfigTestRequest) (dto.TutorResponseResult, error) {
	s.lastTestBody = payload
	return s.tutorResult, s.err
}

func (s *stubTutorConfigService) Generate(context.Context, dto.GenerateRequest) (dto.TutorResponseResult, error) {
	return s.tutorResult, s.err
}

func (s *stubTutorConfigService) ResolveForHomework(context.Context, models.Homework) (models.TutorConfig, error) {
	return models.TutorConfig{}, s.err
}

func newTutorConfigTestApp(svc *stubTutorConfigService) *fiber.App {
	app := fiber.New()
	h := handler.NewTutorConfigHandler(svc, zerolog.Nop())
	h.Register(app.Group("/api/v1/tutor-configs", authenticated(uuid.New(), "teacher")))
	return app
}

func TestTutorConfigHandlerCreateCreated(t *testing.T) {
	svc := &stubTutorConfigService{config: dto.TutorConfigResponse{ID: uuid.New(), Name: "default"}}
	app := newTutorConfigTestApp(svc)

	payload := dto.TutorConfigCreateRequest{
		Name:       "default",
		ModelName:  "gpt-4o-mini",
		APIKey:     "sk-test",
		BasePrompt: "You are a tutor.",
	}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor-configs", payload))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestTutorConfigHandlerConflicts(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "not found", err: service.ErrTutorConfigNotFound, statusCode: fiber.StatusNotFound},
		{name: "default locked", err: service.ErrDefaultConfigLocked, statusCode: fiber.StatusConflict},
		{name: "name taken", err: service.ErrTutorConfigNameTaken, statusCode: fiber.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubTutorConfigService{err: tc.err}
			app := newTutorConfigTestApp(svc)

			resp, err := app.Test(jsonRequest(t, http.MethodDelete, "/api/v1/tutor-configs/"+uuid.NewString(), nil))
			require.NoError(t, err)
			require.Equal(t, tc.statusCode, resp.StatusCode)
		})
	}
}

func TestTutorConfigHandlerTestPassesMessage(t *testing.T) {
	svc := &stubTutorConfigService{tutorResult: dto.TutorResponseResult{Response: "pong", TokensUsed: 3}}
	app := newTutorConfigTestApp(svc)

	target := "/api/v1/tutor-configs/" + uuid.NewString() + "/test"
	payload := dto.TutorConfigTestRequest{Message: "ping"}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, target, payload))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, "ping", svc.lastTestBody.Message)
}

func TestTutorConfigHandlerGenerateUpstreamFailure(t *testing.T) {
	svc := &stubTutorConfigService{err: service.ErrTutorUnavailable}
	app := newTutorConfigTestApp(svc)

	payload := dto.GenerateRequest{Prompt: "say hi"}
	resp, err := app.Test(jsonRequest(t, http.MethodPost, "/api/v1/tutor-configs/generate", payload))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}
