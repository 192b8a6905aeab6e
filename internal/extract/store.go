package extract

import "github.com/zhidu-qidian/Spiders/internal/confdir"

// ConfigStore publishes detail config snapshots.
type ConfigStore = confdir.Store[Snapshot]

// NewConfigStore loads the detail configs under dir.
func NewConfigStore(dir string) (*ConfigStore, error) {
	return confdir.New[Snapshot](dir, ParseSnapshot)
}

// NewStaticConfigStore wraps a fixed snapshot.
func NewStaticConfigStore(snap *Snapshot) *ConfigStore {
	return confdir.Static(snap)
}
