package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/spider"
	"github.com/zhidu-qidian/Spiders/internal/storage"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

type mapFetcher struct {
	bodies map[string][]byte
}

func (f mapFetcher) Fetch(_ context.Context, req spider.FetchRequest) (spider.FetchResponse, error) {
	body, ok := f.bodies[req.URL]
	if !ok {
		return spider.FetchResponse{StatusCode: 404}, errors.New("not found")
	}
	return spider.FetchResponse{URL: req.URL, StatusCode: 200, Body: body}, nil
}

type put struct {
	path        string
	contentType string
	data        []byte
}

type recordingBlobs struct {
	mu       sync.Mutex
	puts     []put
	failures int
}

func (b *recordingBlobs) PutObject(_ context.Context, path, contentType string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
		return "", errors.New("bucket unavailable")
	}
	b.puts = append(b.puts, put{path: path, contentType: contentType, data: data})
	return "https://img.example.com/" + path, nil
}

type noWaitRetry struct{ attempts int }

func (p noWaitRetry) ShouldRetry(err error, attempt int) bool { return err != nil && attempt < p.attempts }
func (noWaitRetry) Backoff(int) time.Duration { return 0 }

func grayImage(w, h int, fill func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: fill(x, y)})
		}
	}
	return img
}

func flat(v uint8) func(int, int) uint8 { return func(int, int) uint8 { return v } }

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeGIF(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	return buf.Bytes()
}

var testNow = time.Date(2017, 5, 4, 10, 30, 15, 0, time.Local)

func newTestService(bodies map[string][]byte, blobs *recordingBlobs, opts ...Option) *Service {
	opts = append([]Option{
		WithClock(fixedClock(testNow)),
		WithRetryPolicy(noWaitRetry{attempts: 3}),
		WithLogger(zap.NewNop()),
	}, opts...)
	return NewService(mapFetcher{bodies: bodies}, blobs, opts...)
}

func TestFeedSize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{640, 480, 640, 480},
		{1000, 300, 400, 300},
		{163, 200, 160, 120},
		{800, 121, 160, 120},
		{100, 100, 0, 0},
		{0, 0, 0, 0},
	}
	for _, tc := range cases {
		w, h := FeedSize(tc.w, tc.h)
		require.Equal(t, tc.wantW, w, "width for %dx%d", tc.w, tc.h)
		require.Equal(t, tc.wantH, h, "height for %dx%d", tc.w, tc.h)
	}
	require.Equal(t, image.Rect(300, 0, 700, 300), CropBox(1000, 300))
}

func TestSHA256(t *testing.T) {
	t.Parallel()

	got, err := SHA256{}.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)
}

func TestIsGray(t *testing.T) {
	t.Parallel()

	require.True(t, IsGray(grayImage(10, 10, flat(255))))
	require.True(t, IsGray(grayImage(10, 10, flat(10))))
	require.False(t, IsGray(grayImage(10, 10, flat(128))))
	require.False(t, IsGray(grayImage(0, 0, flat(0))))
}

func TestScore(t *testing.T) {
	t.Parallel()

	require.Zero(t, Score(grayImage(199, 400, flat(128))))
	require.InDelta(t, 0.0919, Score(grayImage(320, 240, flat(128))), 0.001)
	require.Greater(t, Score(grayImage(400, 300, func(x, y int) uint8 { return uint8((x + y) % 256) })), 0.2)
}

func TestFetchAndUploadBatchesInOrder(t *testing.T) {
	t.Parallel()

	bodies := map[string][]byte{}
	var urls []string
	for i := 0; i < 7; i++ {
		url := "http://img.site/" + string(rune('a'+i)) + ".png"
		bodies[url] = encodePNG(t, grayImage(20+i, 10, flat(uint8(100+i))))
		urls = append(urls, url)
	}
	gifURL := "http://img.site/anim.gif"
	bodies[gifURL] = encodeGIF(t, grayImage(8, 6, flat(255)))
	urls = append(urls, gifURL)

	blobs := &recordingBlobs{}
	metas, err := newTestService(bodies, blobs).FetchAndUpload(context.Background(), urls, "http://news.site/a.html")
	require.NoError(t, err)
	require.Len(t, metas, len(urls))

	name := regexp.MustCompile(`^20170504103015[0-9a-f]{64}_\d+X\d+\.(jpg|gif)$`)
	for i, meta := range metas {
		sum := md5.Sum(bodies[urls[i]])
		require.Equal(t, hex.EncodeToString(sum[:]), meta.MD5)
		require.Equal(t, urls[i], meta.Org)
		require.Regexp(t, name, blobs.puts[i].path)
	}
	require.Equal(t, 20, metas[0].Width)
	require.Equal(t, 26, metas[6].Width)
	require.Equal(t, "image/jpeg", blobs.puts[0].contentType)

	last := metas[len(metas)-1]
	require.True(t, last.Gray)
	require.Equal(t, 8, last.Width)
	require.Equal(t, 6, last.Height)
	require.Equal(t, "image/gif", blobs.puts[len(urls)-1].contentType)
	require.Equal(t, bodies[gifURL], blobs.puts[len(urls)-1].data)
}

func TestFetchAndUploadErrors(t *testing.T) {
	t.Parallel()

	good := encodePNG(t, grayImage(4, 4, flat(90)))
	bodies := map[string][]byte{
		"http://img.site/ok.png":  good,
		"http://img.site/bad.png": []byte("not an image"),
	}

	_, err := newTestService(bodies, &recordingBlobs{}).
		FetchAndUpload(context.Background(), []string{"http://img.site/ok.png", "http://img.site/gone.png"}, "")
	require.ErrorIs(t, err, spider.ErrDownload)

	_, err = newTestService(bodies, &recordingBlobs{}).
		FetchAndUpload(context.Background(), []string{"http://img.site/bad.png"}, "")
	require.ErrorIs(t, err, spider.ErrUpload)

	_, err = newTestService(bodies, &recordingBlobs{failures: 3}).
		FetchAndUpload(context.Background(), []string{"http://img.site/ok.png"}, "")
	require.ErrorIs(t, err, spider.ErrUpload)

	blobs := &recordingBlobs{failures: 2}
	metas, err := newTestService(bodies, blobs).
		FetchAndUpload(context.Background(), []string{"http://img.site/ok.png"}, "")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Len(t, blobs.puts, 1)
}

func TestChooseFeeds(t *testing.T) {
	t.Parallel()

	bodies := map[string][]byte{
		"http://img.site/small.png":  encodePNG(t, grayImage(320, 240, flat(128))),
		"http://img.site/medium.png": encodePNG(t, grayImage(480, 360, flat(128))),
		"http://img.site/large.png":  encodePNG(t, grayImage(640, 480, flat(128))),
		"http://img.site/wide.png": encodePNG(t, grayImage(400, 300, func(x, y int) uint8 {
			return uint8((x*7 + y*13) % 256)
		})),
	}
	flatURLs := []string{"http://img.site/small.png", "http://img.site/medium.png", "http://img.site/large.png", "http://img.site/missing.png"}

	blobs := &recordingBlobs{}
	feeds, err := newTestService(bodies, blobs).ChooseFeeds(context.Background(), flatURLs, false)
	require.NoError(t, err)
	require.Len(t, feeds, 3)
	require.Equal(t, 640, feeds[0].Width)
	require.Equal(t, 480, feeds[0].Height)
	require.Equal(t, 320, feeds[2].Width)

	feeds, err = newTestService(bodies, &recordingBlobs{}).ChooseFeeds(context.Background(), flatURLs, true)
	require.NoError(t, err)
	require.Empty(t, feeds)

	feeds, err = newTestService(bodies, &recordingBlobs{}).
		ChooseFeeds(context.Background(), []string{"http://img.site/small.png", "http://img.site/wide.png"}, true)
	require.NoError(t, err)
	require.Len(t, feeds, 1)
	require.Equal(t, 400, feeds[0].Width)
	require.Equal(t, 300, feeds[0].Height)

	feeds, err = newTestService(bodies, &recordingBlobs{}).ChooseFeeds(context.Background(), nil, true)
	require.NoError(t, err)
	require.Empty(t, feeds)
}

func TestFetchAndUploadUsesPrefix(t *testing.T) {
	t.Parallel()

	url := "http://img.site/p.png"
	bodies := map[string][]byte{url: encodePNG(t, grayImage(4, 4, flat(90)))}
	blobs := &storage.MockBlobStore{}
	blobs.On("PutObject",
		mock.Anything,
		mock.MatchedBy(func(p string) bool {
			return strings.HasPrefix(p, "news/20170504103015") && strings.HasSuffix(p, "_4X4.jpg")
		}),
		"image/jpeg",
		mock.Anything,
	).Return("https://cdn.example.com/p.jpg", nil).Once()

	svc := NewService(mapFetcher{bodies: bodies}, blobs,
		WithClock(fixedClock(testNow)),
		WithRetryPolicy(noWaitRetry{attempts: 1}),
		WithPrefix("news"),
	)
	metas, err := svc.FetchAndUpload(context.Background(), []string{url}, "")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/p.jpg", metas[0].Src)
	blobs.AssertExpectations(t)
}
