package cache

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// epochTTL outlives any upstream call a snapshot can wait on.
const epochTTL = 10 * time.Minute

var epochs atomic.Uint64

func clientPrefix(clientID string) string {
	return "snapshot:v1:client=" + clientID + ":"
}

func epochKey(clientID string) string {
	return "snapshot:v1:epoch=" + clientID
}

// SnapshotKey identifies one dashboard snapshot for one signed-in user on
// one client.
func SnapshotKey(clientID, userID, view string, limit int) string {
	return clientPrefix(clientID) +
		"user=" + userID +
		":view=" + strings.ToLower(strings.TrimSpace(view)) +
		":limit=" + strconv.Itoa(limit)
}

// ForgetClient drops every snapshot held for clientID. Fetches that started
// before the call can no longer store their result; see SetSnapshot.
func (c *Cache) ForgetClient(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := clientPrefix(clientID)
	n := 0
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
			n++
		}
	}
	c.m[epochKey(clientID)] = entry{val: epochs.Add(1), exp: c.now().Add(epochTTL)}
	return n
}

// SnapshotEpoch returns the client's current epoch. Record it before
// fetching and pass it to SetSnapshot.
func (c *Cache) SnapshotEpoch(clientID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochLocked(clientID)
}

// SetSnapshot stores val under key unless the client was forgotten since
// epoch was read. It reports whether val was stored.
func (c *Cache) SetSnapshot(key, clientID string, epoch uint64, val any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epochLocked(clientID) != epoch {
		return false
	}
	c.m[key] = entry{val: val, exp: c.now().Add(c.ttl)}
	return true
}

func (c *Cache) epochLocked(clientID string) uint64 {
	e, ok := c.m[epochKey(clientID)]
	if !ok || c.now().After(e.exp) {
		return 0
	}
	v, _ := e.val.(uint64)
	return v
}
