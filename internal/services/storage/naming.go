package storage

import (
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

const (
	timestampLayout = "20060102_150405"
	rawSuffix       = ".jpg"
	annotatedSuffix = "_processed.jpg"
	resultSuffix    = "_result.json"
)

// CameraDir is the per-camera key prefix
func CameraDir(cameraID int64) string {
	return fmt.Sprintf("camera%d", cameraID)
}

// keyReserver hands out unique artifact base keys. The first save of a second
// keeps the bare timestamp; later saves in the same second get _1, _2, ...
type keyReserver struct {
	mu   sync.Mutex
	seen map[int64]map[string]int
}

const maxTrackedStamps = 16

func newKeyReserver() *keyReserver {
	return &keyReserver{seen: make(map[int64]map[string]int)}
}

func (r *keyReserver) reserve(cameraID int64, ts time.Time) string {
	value := ts.Format(timestampLayout)

	r.mu.Lock()
	stamps, ok := r.seen[cameraID]
	if !ok {
		stamps = make(map[string]int)
		r.seen[cameraID] = stamps
	}
	n := stamps[value]
	stamps[value] = n + 1
	if len(stamps) > maxTrackedStamps {
		// Layout sorts lexically, so older seconds compare smaller
		for v := range stamps {
			if v < value {
				delete(stamps, v)
			}
		}
	}
	r.mu.Unlock()

	base := path.Join(CameraDir(cameraID), value)
	if n > 0 {
		base = fmt.Sprintf("%s_%d", base, n)
	}
	return base
}

// validKey rejects keys that escape the store root
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	clean := path.Clean(key)
	return clean == key && !strings.HasPrefix(clean, "../") && clean != ".."
}
