package handler

import (
	"sync"

	"github.com/ftl/cellbroadcast/cb"
)

// AreaInfoCache keeps the latest area info text of every slot.
type AreaInfoCache struct {
	mu    sync.RWMutex
	texts map[int]string
}

func NewAreaInfoCache() *AreaInfoCache {
	return &AreaInfoCache{
		texts: make(map[int]string),
	}
}

// Get returns the area info of the given slot, or the empty string if there is none.
func (c *AreaInfoCache) Get(slot int) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.texts[slot]
}

func (c *AreaInfoCache) Set(slot int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts[slot] = text
}

func isAreaInfoChannel(channels []cb.MessageIdentifier, serviceCategory cb.MessageIdentifier) bool {
	for _, channel := range channels {
		if channel == serviceCategory {
			return true
		}
	}
	return false
}
