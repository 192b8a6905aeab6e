// Package queue names the shared work sets and hosts the broker backends
// (memory and redis sub-packages). A key holds a set of ids; popping removes
// a random member atomically so concurrent schedulers never share an id.
package queue

import "strings"

// Shared set keys.
const (
	KeySchedule = "v1:spider:schedule:all:id"
	KeyList     = "v1:spider:task:list:id"
	KeyDownload = "v1:spider:task:download:id"
	KeyDetail   = "v1:spider:task:detail:id"
	KeyClean    = "v1:spider:task:clean:id"
	KeyResource = "v1:spider:task:resource:id"
	KeyPrepare  = "v1:spider:task:prepare:id"
	KeyStore    = "v1:spider:task:store:id"
	KeyVideo    = "v1:spider:task:video:id"
	KeyJoke     = "v1:spider:task:joke:id"

	KeyWeixin = "v1:spider:task:special:weixin:id"
	KeyBaidu  = "v1:spider:task:special:baidu:id"
	KeyHaowai = "v1:spider:task:special:haowai:id"
)

// Stage returns the short stage name of a key ("list" for KeyList), or the
// key itself when it does not follow the v1:spider:<kind>:<name>:id layout.
func Stage(key string) string {
	parts := strings.Split(key, ":")
	if len(parts) < 5 || parts[0] != "v1" || parts[1] != "spider" || parts[len(parts)-1] != "id" {
		return key
	}
	if key == KeySchedule {
		return "redistribute"
	}
	return parts[len(parts)-2]
}
