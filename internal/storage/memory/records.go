package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/zhidu-qidian/Spiders/internal/spider"
)

// RecordStore keeps work records in a map keyed by generated id, with a
// secondary index on Unique.
type RecordStore struct {
	mu      sync.RWMutex
	ids     spider.IDGenerator
	records map[string]*spider.Record
	unique  map[string]string
}

var _ spider.RecordStore = (*RecordStore)(nil)

// NewRecordStore constructs a RecordStore using ids for new records.
func NewRecordStore(ids spider.IDGenerator) *RecordStore {
	return &RecordStore{
		ids:     ids,
		records: make(map[string]*spider.Record),
		unique:  make(map[string]string),
	}
}

// Insert stores a copy of r unless its Unique is already taken.
func (s *RecordStore) Insert(_ context.Context, r *spider.Record) (string, error) {
	if r == nil {
		return "", fmt.Errorf("record is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.Unique != "" {
		if _, ok := s.unique[r.Unique]; ok {
			return "", spider.ErrDuplicate
		}
	}
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate record id: %w", err)
	}
	cp := cloneRecord(r)
	cp.ID = id
	s.records[id] = cp
	if r.Unique != "" {
		s.unique[r.Unique] = id
	}
	return id, nil
}

// Get returns a copy of the record.
func (s *RecordStore) Get(_ context.Context, id string) (*spider.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, spider.ErrNotFound)
	}
	return cloneRecord(r), nil
}

// Update applies patch, refusing procedure moves CanAdvance rejects.
func (s *RecordStore) Update(_ context.Context, id string, patch spider.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("record %s: %w", id, spider.ErrNotFound)
	}
	if patch.Procedure != nil && !spider.CanAdvance(r.Procedure, *patch.Procedure) {
		return fmt.Errorf("record %s %s -> %s: %w", id, r.Procedure, *patch.Procedure, spider.ErrProcedureRegression)
	}
	next := cloneRecord(r)
	patch.Apply(next)
	s.records[id] = cloneRecord(next)
	return nil
}

// Len reports how many records are stored.
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func cloneRecord(r *spider.Record) *spider.Record {
	cp := *r
	cp.Pages = append([]spider.Page(nil), r.Pages...)
	cp.ListFields.Thumbs = append([]spider.ImageMeta(nil), r.ListFields.Thumbs...)
	cp.ListFields.Comment = maps.Clone(r.ListFields.Comment)
	cp.Fields = cloneFields(r.Fields)
	return &cp
}

func cloneFields(f spider.Fields) spider.Fields {
	cp := f
	cp.Comment = maps.Clone(f.Comment)
	cp.GenFeeds = append([]spider.FeedImage(nil), f.GenFeeds...)
	cp.OriFeeds = append([]spider.FeedImage(nil), f.OriFeeds...)
	if f.Content != nil {
		cp.Content = make([]spider.ContentItem, len(f.Content))
		for i, item := range f.Content {
			item.Attrs = maps.Clone(item.Attrs)
			cp.Content[i] = item
		}
	}
	return cp
}

// ConfigSource serves site configs and channels registered with Put*.
type ConfigSource struct {
	mu       sync.RWMutex
	configs  map[string]spider.SiteConfig
	channels map[string]spider.Channel
}

var _ spider.ConfigSource = (*ConfigSource)(nil)

// NewConfigSource constructs an empty ConfigSource.
func NewConfigSource() *ConfigSource {
	return &ConfigSource{
		configs:  make(map[string]spider.SiteConfig),
		channels: make(map[string]spider.Channel),
	}
}

// PutConfig registers cfg under cfg.ID.
func (s *ConfigSource) PutConfig(cfg spider.SiteConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
}

// PutChannel registers ch under ch.ID.
func (s *ConfigSource) PutChannel(ch spider.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
}

// Config returns the config with id.
func (s *ConfigSource) Config(_ context.Context, id string) (spider.SiteConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok {
		return spider.SiteConfig{}, fmt.Errorf("config %s: %w", id, spider.ErrNotFound)
	}
	return cfg, nil
}

// Channel returns the channel with id.
func (s *ConfigSource) Channel(_ context.Context, id string) (spider.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	if !ok {
		return spider.Channel{}, fmt.Errorf("channel %s: %w", id, spider.ErrNotFound)
	}
	return ch, nil
}

// OutputStore collects terminal documents per collection.
type OutputStore struct {
	mu   sync.RWMutex
	ids  spider.IDGenerator
	docs map[string][]spider.StoreDocument
	fail error
}

var _ spider.OutputStore = (*OutputStore)(nil)

// NewOutputStore constructs an OutputStore.
func NewOutputStore(ids spider.IDGenerator) *OutputStore {
	return &OutputStore{ids: ids, docs: make(map[string][]spider.StoreDocument)}
}

// FailWith makes later inserts return err (nil restores normal behaviour).
func (s *OutputStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// InsertDocument appends doc to collection.
func (s *OutputStore) InsertDocument(_ context.Context, collection string, doc spider.StoreDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate document id: %w", err)
	}
	doc.Fields = cloneFields(doc.Fields)
	s.docs[collection] = append(s.docs[collection], doc)
	return id, nil
}

// Documents returns a copy of the documents stored in collection.
func (s *OutputStore) Documents(collection string) []spider.StoreDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]spider.StoreDocument(nil), s.docs[collection]...)
}

// AdRegistry answers advertisement lookups from fixed md5 and url sets.
type AdRegistry struct {
	mu   sync.RWMutex
	md5s map[string]struct{}
	urls map[string]struct{}
}

var _ spider.AdRegistry = (*AdRegistry)(nil)

// NewAdRegistry constructs an empty AdRegistry.
func NewAdRegistry() *AdRegistry {
	return &AdRegistry{md5s: make(map[string]struct{}), urls: make(map[string]struct{})}
}

// Add registers an advertisement by md5 and/or url.
func (r *AdRegistry) Add(md5, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if md5 != "" {
		r.md5s[md5] = struct{}{}
	}
	if url != "" {
		r.urls[url] = struct{}{}
	}
}

// IsAdvertisement reports whether md5 or url was registered.
func (r *AdRegistry) IsAdvertisement(_ context.Context, md5, url string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.md5s[md5]; ok && md5 != "" {
		return true, nil
	}
	_, ok := r.urls[url]
	return ok && url != "", nil
}
