package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/app"
	"github.com/zhidu-qidian/Spiders/internal/config"
	"github.com/zhidu-qidian/Spiders/internal/queue"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

const feedConfig = `{"list": [{
  "crawler": "qq_html",
  "list": {"method": "select", "params": {"selector": "ul.news > li"}},
  "title": {"params": {"name": "a"}},
  "url": {"params": {"name": "a"}, "attribute": "href"}
}]}`

// MockBroker mocks the spider.Broker interface.
type MockBroker struct {
	mock.Mock
}

// Pop satisfies spider.Broker.
func (m *MockBroker) Pop(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

// Add satisfies spider.Broker.
func (m *MockBroker) Add(ctx context.Context, key string, ids ...string) error {
	args := m.Called(ctx, key, ids)
	return args.Error(0)
}

type nopFetcher struct{}

func (nopFetcher) Fetch(_ context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	return spider.FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	root := t.TempDir()
	cfg.Extract.DetailDir = filepath.Join(root, "detail")
	cfg.Extract.FeedDir = filepath.Join(root, "feed")
	cfg.Extract.PaginationDir = filepath.Join(root, "pagination")
	for _, dir := range []string{cfg.Extract.DetailDir, cfg.Extract.FeedDir, cfg.Extract.PaginationDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Extract.FeedDir, "qq.json"), []byte(feedConfig), 0o600))
	return cfg
}

func newApp(t *testing.T, cfg config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithFetcher(nopFetcher{}),
	}, opts...)
	a, err := app.New(context.Background(), cfg, zap.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewWithMemoryBackends(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	require.NotNil(t, a.Stages())
	require.NotNil(t, a.Broker())
	require.NotNil(t, a.Events())
	require.NotEqual(t, [16]byte{}, [16]byte(a.RunID()))
	require.True(t, a.Feeds().Supports("qq_html"))

	for _, group := range []string{"long", "middle", "short"} {
		s, err := a.Scheduler(group)
		require.NoError(t, err, group)
		require.NotNil(t, s)
	}
	_, err := a.Scheduler("nightly")
	require.Error(t, err)

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}

func TestNewFailsOnMissingConfigDir(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Extract.DetailDir = filepath.Join(t.TempDir(), "missing")
	_, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithFetcher(nopFetcher{}),
	)
	require.ErrorContains(t, err, "load detail configs")
}

func TestSchedulerUsesInjectedBroker(t *testing.T) {
	t.Parallel()

	broker := &MockBroker{}
	broker.On("Pop", mock.Anything, mock.Anything).Return("", false, nil)

	a := newApp(t, testConfig(t), app.WithBroker(broker))
	s, err := a.Scheduler("short")
	require.NoError(t, err)

	dispatched, err := s.Step(context.Background())
	require.NoError(t, err)
	require.False(t, dispatched)
	broker.AssertNumberOfCalls(t, "Pop", 5)
	broker.AssertCalled(t, "Pop", mock.Anything, queue.KeyStore)
}

func TestAPIServerServesEngines(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(t))
	handler := a.APIServer().Handler()

	body := `{"crawler":"qq_html","url":"http://news.qq.com/list.htm","html":"<ul class=\"news\"><li><a href=\"/a/1.htm\">First</a></li></ul>"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/list", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http://news.qq.com/a/1.htm")

	req = httptest.NewRequest(http.MethodPost, "/v1/configs/reload", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"reloaded":["detail","feed","pagination"],"failed":{}}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/v1/failures", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv := a.HTTPServer()
	require.Equal(t, ":8080", srv.Addr)
}
