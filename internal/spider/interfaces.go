package spider

import (
	"context"
	"time"
)

// RecordStore persists work records.
type RecordStore interface {
	// Insert stores r if no record with the same Unique exists and returns
	// the new id. Collisions return ErrDuplicate.
	Insert(ctx context.Context, r *Record) (string, error)
	Get(ctx context.Context, id string) (*Record, error)
	// Update applies a partial update. Procedure changes that would move the
	// record backwards return ErrProcedureRegression.
	Update(ctx context.Context, id string, patch Patch) error
}

// ConfigSource resolves site configs and channels.
type ConfigSource interface {
	Config(ctx context.Context, id string) (SiteConfig, error)
	Channel(ctx context.Context, id string) (Channel, error)
}

// OutputStore receives terminal documents in per-form collections.
type OutputStore interface {
	InsertDocument(ctx context.Context, collection string, doc StoreDocument) (string, error)
}

// AdRegistry answers whether an image is a known advertisement.
type AdRegistry interface {
	IsAdvertisement(ctx context.Context, md5, url string) (bool, error)
}

// Broker is the shared work-queue: named sets supporting atomic random pop.
type Broker interface {
	Pop(ctx context.Context, key string) (string, bool, error)
	Add(ctx context.Context, key string, ids ...string) error
}

// Fetcher performs a single HTTP request.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// ImageService re-hosts images and picks feed thumbnails.
type ImageService interface {
	// FetchAndUpload returns one ImageMeta per url, in input order. Download
	// failures return a KindDownload error, upload failures KindUpload.
	FetchAndUpload(ctx context.Context, urls []string, referer string) ([]ImageMeta, error)
	// ChooseFeeds returns at most three cropped thumbnails.
	ChooseFeeds(ctx context.Context, urls []string, scoring bool) ([]FeedImage, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes downstream notifications.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces opaque ids.
type IDGenerator interface {
	NewID() (string, error)
}
