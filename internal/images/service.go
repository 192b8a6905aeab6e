package images

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif" // register decoders
	"image/jpeg"
	_ "image/png"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/zhidu-qidian/Spiders/internal/fetcher"
	"github.com/zhidu-qidian/Spiders/internal/metrics"
	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// Defaults for Service.
const (
	DefaultBatchSize      = 5
	DefaultUploadAttempts = 3
	scoreThreshold        = 0.2
	maxFeeds              = 3
	jpegQuality           = 95
)

// QRDetector reports whether an image is a QR code.
type QRDetector interface {
	IsQR(img image.Image) bool
}

type noQR struct{}

func (noQR) IsQR(image.Image) bool { return false }

// SHA256 is the default object name hasher.
type SHA256 struct{}

// Hash returns the hex SHA-256 digest of data.
func (SHA256) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Service implements spider.ImageService on top of a fetcher and a blob
// store.
type Service struct {
	fetcher spider.Fetcher
	blobs   spider.BlobStore
	hasher  spider.Hasher
	qr      QRDetector
	retry   spider.RetryPolicy
	now     func() time.Time
	batch   int
	prefix  string
	logger  *zap.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithQRDetector plugs in a QR code scanner.
func WithQRDetector(d QRDetector) Option {
	return func(s *Service) { s.qr = d }
}

// WithRetryPolicy sets the upload retry policy.
func WithRetryPolicy(p spider.RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithClock sets the clock used for object name prefixes.
func WithClock(c spider.Clock) Option {
	return func(s *Service) { s.now = c.Now }
}

// WithBatchSize sets how many images are downloaded together.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batch = n
		}
	}
}

// WithHasher replaces the object name hasher.
func WithHasher(h spider.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithPrefix places uploads under a directory of the blob store.
func WithPrefix(p string) Option {
	return func(s *Service) { s.prefix = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the image pipeline.
func NewService(f spider.Fetcher, blobs spider.BlobStore, opts ...Option) *Service {
	s := &Service{
		fetcher: f,
		blobs:   blobs,
		hasher:  SHA256{},
		qr:      noQR{},
		retry:   spider.NewExponentialRetryPolicy(DefaultUploadAttempts),
		now:     time.Now,
		batch:   DefaultBatchSize,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchAndUpload downloads urls in batches and re-hosts each image. The
// result lines up with urls. Any failed download aborts the whole call with
// a download error; decode and upload failures return an upload error.
func (s *Service) FetchAndUpload(ctx context.Context, urls []string, referer string) ([]spider.ImageMeta, error) {
	metas := make([]spider.ImageMeta, 0, len(urls))
	for start := 0; start < len(urls); start += s.batch {
		end := min(start+s.batch, len(urls))
		results := fetcher.MultiGet(ctx, s.fetcher, urls[start:end], referer, s.batch)
		for i, r := range results {
			if r.Err != nil {
				metrics.ObserveImages("download_error", 1)
				return nil, spider.DownloadError("download image "+urls[start+i], r.Err)
			}
		}
		for i, r := range results {
			meta, err := s.process(ctx, r.Response, urls[start+i])
			if err != nil {
				metrics.ObserveImages("upload_error", 1)
				return nil, spider.UploadError("process image "+urls[start+i], err)
			}
			metas = append(metas, meta)
		}
	}
	metrics.ObserveImages("ok", len(metas))
	return metas, nil
}

func (s *Service) process(ctx context.Context, resp spider.FetchResponse, rawURL string) (spider.ImageMeta, error) {
	img, format, err := image.Decode(bytes.NewReader(resp.Body))
	if err != nil {
		return spider.ImageMeta{}, fmt.Errorf("decode: %w", err)
	}
	sum := md5.Sum(resp.Body)
	org := resp.URL
	if org == "" {
		org = rawURL
	}
	src, err := s.upload(ctx, img, format, resp.Body)
	if err != nil {
		return spider.ImageMeta{}, err
	}
	b := img.Bounds()
	return spider.ImageMeta{
		Src:    src,
		Width:  b.Dx(),
		Height: b.Dy(),
		QR:     s.qr.IsQR(img),
		Gray:   IsGray(img),
		MD5:    hex.EncodeToString(sum[:]),
		Org:    org,
	}, nil
}

// upload stores gifs as fetched so animation survives and re-encodes every
// other format as JPEG.
func (s *Service) upload(ctx context.Context, img image.Image, format string, raw []byte) (string, error) {
	data, contentType, suffix := raw, "image/gif", "gif"
	if format != "gif" {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return "", fmt.Errorf("encode jpeg: %w", err)
		}
		data, contentType, suffix = buf.Bytes(), "image/jpeg", "jpg"
	}
	name, err := s.objectName(img, suffix)
	if err != nil {
		return "", err
	}
	return s.put(ctx, name, contentType, data)
}

// objectName is <yyyymmddHHMMSS><sha256 of pixels>_<w>X<h>.<suffix>.
func (s *Service) objectName(img image.Image, suffix string) (string, error) {
	digest, err := s.hasher.Hash(pixels(img))
	if err != nil {
		return "", fmt.Errorf("hash pixels: %w", err)
	}
	b := img.Bounds()
	name := fmt.Sprintf("%s%s_%dX%d.%s", s.now().Format("20060102150405"), digest, b.Dx(), b.Dy(), suffix)
	if s.prefix != "" {
		name = path.Join(s.prefix, name)
	}
	return name, nil
}

func (s *Service) put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	var src string
	err := spider.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		src, err = s.blobs.PutObject(ctx, name, contentType, data)
		if err != nil {
			s.logger.Warn("image upload failed", zap.String("name", name), zap.Error(err))
		}
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	return src, nil
}

func pixels(img image.Image) []byte {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba.Pix
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba.Pix
}

type candidate struct {
	img   image.Image
	score float64
}

// ChooseFeeds scores the downloadable images, keeps those at or above the
// threshold (0.2 when scoring, 0 otherwise) until a repeated score, and
// uploads up to three centre crops, or one when fewer than three qualify.
func (s *Service) ChooseFeeds(ctx context.Context, urls []string, scoring bool) ([]spider.FeedImage, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	var candidates []candidate
	for _, r := range fetcher.MultiGet(ctx, s.fetcher, urls, "", s.batch) {
		if r.Err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(r.Response.Body))
		if err != nil {
			s.logger.Debug("skip undecodable feed image", zap.String("url", r.Response.URL), zap.Error(err))
			continue
		}
		candidates = append(candidates, candidate{img: img, score: Score(img)})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	threshold := 0.0
	if scoring {
		threshold = scoreThreshold
	}
	seen := make(map[float64]bool)
	var chosen []image.Image
	for _, c := range candidates {
		if c.score < threshold || seen[c.score] {
			break
		}
		seen[c.score] = true
		chosen = append(chosen, c.img)
	}
	if len(chosen) == 0 {
		return nil, nil
	}

	want := 1
	if len(chosen) >= maxFeeds {
		want = maxFeeds
	}
	var feeds []spider.FeedImage
	for _, img := range chosen {
		feed, err := s.cropAndUpload(ctx, img)
		if err != nil {
			s.logger.Warn("feed crop failed", zap.Error(err))
			continue
		}
		feeds = append(feeds, feed)
		if len(feeds) == want {
			break
		}
	}
	return feeds, nil
}

var errTooSmall = errors.New("image too small for a feed")

func (s *Service) cropAndUpload(ctx context.Context, img image.Image) (spider.FeedImage, error) {
	b := img.Bounds()
	box := CropBox(b.Dx(), b.Dy())
	if box.Empty() {
		return spider.FeedImage{}, errTooSmall
	}
	crop := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Draw(crop, crop.Bounds(), img, b.Min.Add(box.Min), draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return spider.FeedImage{}, fmt.Errorf("encode feed: %w", err)
	}
	name, err := s.objectName(crop, "jpg")
	if err != nil {
		return spider.FeedImage{}, err
	}
	src, err := s.put(ctx, name, "image/jpeg", buf.Bytes())
	if err != nil {
		return spider.FeedImage{}, err
	}
	return spider.FeedImage{Src: src, Width: box.Dx(), Height: box.Dy()}, nil
}
