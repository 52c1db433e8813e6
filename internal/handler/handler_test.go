package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/config"
	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

type fakeRepository struct {
	mu        sync.Mutex
	createErr error
	runs      map[int64]*domain.DistortionRun
	nextID    int64
	deleted   []int64
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{runs: map[int64]*domain.DistortionRun{}, nextID: 1}
}

func (f *fakeRepository) CreateDistortionRun(run *domain.DistortionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	run.ID = f.nextID
	run.Status = domain.RunStatusPending
	run.CreatedAt = time.Now()
	run.Version = 1
	f.nextID++
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRepository) GetDistortionRunByID(id int64) (*domain.DistortionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (f *fakeRepository) GetAllDistortionRuns() ([]*domain.DistortionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	runs := []*domain.DistortionRun{}
	for _, run := range f.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func (f *fakeRepository) DeleteDistortionRun(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.runs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.runs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type published struct {
	key string
	msg amqp.Publishing
}

type fakePublisher struct {
	err      error
	messages []published
}

func (f *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{key: key, msg: msg})
	return nil
}

type testResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

func newTestConfig() *config.Config {
	cfg := &config.Config{Environment: "development"}
	cfg.Admin.Username = "admin"
	cfg.Admin.Password = "secret-password"
	cfg.JWT.Secret = "jwt-secret"
	cfg.JWT.Expiration = 1
	cfg.RabbitMQ.PublishTimeout = 1
	cfg.Distorter = config.DistorterConfig{
		PopulationSize: 10,
		EliteSize:      2,
		MutationRate:   0.2,
		Alpha:          0.5,
		Generations:    5,
		Concurrency:    1,
	}
	return cfg
}

func newTestHandler(t *testing.T, repo Repository, pub Publisher) *Handler {
	t.Helper()
	h, err := NewHandler(newTestConfig(), repo, pub)
	require.NoError(t, err)
	h.RegisterRoutes()
	return h
}

func doRequest(t *testing.T, h *Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var resp testResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func login(t *testing.T, h *Handler) *http.Cookie {
	t.Helper()
	rec, resp := doRequest(t, h, http.MethodPost, "/auth/login", map[string]string{
		"username": "admin",
		"password": "secret-password",
	})
	require.True(t, resp.Success, resp.Message)

	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookieName {
			return c
		}
	}
	t.Fatal("登录后没有设置 cookie")
	return nil
}

func TestLogin(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})

	cookie := login(t, h)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)

	_, resp := doRequest(t, h, http.MethodPost, "/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong",
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "用户名不存在或密码错误", resp.Message)

	_, resp = doRequest(t, h, http.MethodPost, "/auth/login", map[string]string{
		"username": "someone",
		"password": "secret-password",
	})
	assert.False(t, resp.Success)

	_, resp = doRequest(t, h, http.MethodPost, "/auth/login", map[string]string{"username": "admin"})
	assert.False(t, resp.Success)
}

func TestDistortions_RequireLogin(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})

	_, resp := doRequest(t, h, http.MethodGet, "/distortions", nil)
	assert.False(t, resp.Success)
	assert.Equal(t, "用户未登录", resp.Message)

	_, resp = doRequest(t, h, http.MethodGet, "/distortions", nil, &http.Cookie{Name: tokenCookieName, Value: "garbage"})
	assert.False(t, resp.Success)
	assert.Equal(t, "无效的令牌", resp.Message)
}

func TestPreviewDistortion(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions/preview", map[string]any{
		"text":    "Hello World",
		"weights": map[string]float64{"unchanged": 1},
		"seed":    3,
	}, cookie)
	require.True(t, resp.Success, resp.Message)

	var data struct {
		DistortedText  string             `json:"distortedText"`
		Weights        map[string]float64 `json:"weights"`
		CategoryCounts map[string]int     `json:"categoryCounts"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "Hello World", data.DistortedText)
	assert.Equal(t, 100.0, data.Weights["unchanged"])
	// 两个大写字母不计入
	assert.Equal(t, 9, data.CategoryCounts["unchanged"])
	assert.Equal(t, 0, data.CategoryCounts["symbol"])
}

func TestPreviewDistortion_Deterministic(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})
	cookie := login(t, h)

	body := map[string]any{
		"text":    "the quick brown fox jumps over the lazy dog",
		"weights": map[string]float64{"unchanged": 50, "symbol": 25, "repeat": 25},
		"seed":    11,
	}
	_, first := doRequest(t, h, http.MethodPost, "/distortions/preview", body, cookie)
	_, second := doRequest(t, h, http.MethodPost, "/distortions/preview", body, cookie)
	require.True(t, first.Success, first.Message)
	assert.JSONEq(t, string(first.Data), string(second.Data))
}

func TestPreviewDistortion_InvalidWeights(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions/preview", map[string]any{
		"text":    "hello",
		"weights": map[string]float64{"unchanged": 0},
	}, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, codeInvalidWeights, resp.Code)

	_, resp = doRequest(t, h, http.MethodPost, "/distortions/preview", map[string]any{
		"text":    "hello",
		"weights": map[string]float64{"leet": 10},
	}, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, codeInvalidWeights, resp.Code)

	_, resp = doRequest(t, h, http.MethodPost, "/distortions/preview", map[string]any{
		"weights": map[string]float64{"unchanged": 10},
	}, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, codeValidation, resp.Code)
}

func TestReadJSON_BodyTooLarge(t *testing.T) {
	repo := newFakeRepository()
	h := newTestHandler(t, repo, &fakePublisher{})
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions", map[string]any{
		"text": strings.Repeat("a", maxRequestBodyBytes+1),
	}, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, "请求体过大", resp.Message)
	assert.Equal(t, codeInvalidRequest, resp.Code)
	assert.Empty(t, repo.runs)
}

func TestCreateDistortionRun_UsesDefaults(t *testing.T) {
	repo := newFakeRepository()
	pub := &fakePublisher{}
	h := newTestHandler(t, repo, pub)
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions", map[string]any{
		"text":        "hello world",
		"notifyEmail": "someone@example.com",
		"generations": 3,
		"seed":        9,
	}, cookie)
	require.True(t, resp.Success, resp.Message)

	var run domain.DistortionRun
	require.NoError(t, json.Unmarshal(resp.Data, &run))
	assert.Equal(t, int64(1), run.ID)
	assert.Equal(t, domain.RunStatusPending, run.Status)
	assert.Equal(t, int32(10), run.Parameters.PopulationSize)
	assert.Equal(t, int32(2), run.Parameters.EliteSize)
	assert.Equal(t, int32(3), run.Parameters.Generations)
	assert.Equal(t, int64(9), run.Parameters.Seed)
	assert.Equal(t, "someone@example.com", run.NotifyEmail)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, domain.DistortionQueue, pub.messages[0].key)
	assert.Equal(t, amqp.Persistent, pub.messages[0].msg.DeliveryMode)

	var job domain.DistortionJob
	require.NoError(t, json.Unmarshal(pub.messages[0].msg.Body, &job))
	assert.Equal(t, int64(1), job.RunID)
}

func TestCreateDistortionRun_Invalid(t *testing.T) {
	repo := newFakeRepository()
	pub := &fakePublisher{}
	h := newTestHandler(t, repo, pub)
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions", map[string]any{
		"text":      "hello world",
		"eliteSize": 20,
	}, cookie)
	assert.False(t, resp.Success)

	_, resp = doRequest(t, h, http.MethodPost, "/distortions", map[string]any{
		"text":        "hello world",
		"notifyEmail": "not-an-email",
	}, cookie)
	assert.False(t, resp.Success)

	_, resp = doRequest(t, h, http.MethodPost, "/distortions", map[string]any{}, cookie)
	assert.False(t, resp.Success)

	assert.Empty(t, repo.runs)
	assert.Empty(t, pub.messages)
}

func TestCreateDistortionRun_TextTooLong(t *testing.T) {
	repo := newFakeRepository()
	repo.createErr = &pgconn.PgError{Code: "23514", ConstraintName: "distortion_runs_original_text_check"}
	pub := &fakePublisher{}
	h := newTestHandler(t, repo, pub)
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodPost, "/distortions", map[string]any{"text": "hello"}, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, "文本过长", resp.Message)
	assert.Empty(t, resp.Code)
	assert.Empty(t, pub.messages)
}

func TestCreateDistortionRun_PublishFailure(t *testing.T) {
	repo := newFakeRepository()
	h := newTestHandler(t, repo, &fakePublisher{err: errors.New("channel closed")})
	cookie := login(t, h)

	rec, resp := doRequest(t, h, http.MethodPost, "/distortions", map[string]any{"text": "hello"}, cookie)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, codeInternalFailure, resp.Code)
	assert.Empty(t, repo.runs)
	assert.Equal(t, []int64{1}, repo.deleted)
}

func TestGetAndDeleteDistortionRun(t *testing.T) {
	repo := newFakeRepository()
	h := newTestHandler(t, repo, &fakePublisher{})
	cookie := login(t, h)

	_, resp := doRequest(t, h, http.MethodGet, "/distortions/42", nil, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, "任务不存在", resp.Message)

	_, resp = doRequest(t, h, http.MethodGet, "/distortions/abc", nil, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, "任务ID无效", resp.Message)

	run := &domain.DistortionRun{OriginalText: "hello"}
	require.NoError(t, repo.CreateDistortionRun(run))

	_, resp = doRequest(t, h, http.MethodGet, "/distortions/1", nil, cookie)
	require.True(t, resp.Success, resp.Message)

	_, resp = doRequest(t, h, http.MethodGet, "/distortions", nil, cookie)
	require.True(t, resp.Success, resp.Message)
	var runs []domain.DistortionRun
	require.NoError(t, json.Unmarshal(resp.Data, &runs))
	assert.Len(t, runs, 1)

	run.Status = domain.RunStatusRunning
	_, resp = doRequest(t, h, http.MethodDelete, "/distortions/1", nil, cookie)
	assert.False(t, resp.Success)
	assert.Equal(t, "任务正在运行，无法删除", resp.Message)

	run.Status = domain.RunStatusCompleted
	_, resp = doRequest(t, h, http.MethodDelete, "/distortions/1", nil, cookie)
	assert.True(t, resp.Success, resp.Message)
	assert.Empty(t, repo.runs)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, newFakeRepository(), &fakePublisher{})

	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
