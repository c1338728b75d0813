package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/prefeitura-rio/searsia-node/internal/search/query"
)

// ExactStore guarda páginas de resultado já servidas, serializadas, por
// (resource, query normalizada).
type ExactStore interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// ExactKey monta a chave do par (query, resource)
func ExactKey(q, resourceID string) string {
	return resourceID + "|" + query.Normalize(q)
}

type lruEntry struct {
	key        string
	value      []byte
	expiration time.Time
}

// LRUStore é um ExactStore em memória, LRU com TTL por entrada
type LRUStore struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lruList *list.List
}

// NewLRUStore cria o store com a capacidade e a janela de validade informadas
func NewLRUStore(capacity int, ttl time.Duration) *LRUStore {
	if capacity <= 0 {
		capacity = 500
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LRUStore{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

func (c *LRUStore) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, found := c.entries[key]
	if !found {
		return nil, false
	}
	entry := element.Value.(*lruEntry)
	if c.now().After(entry.expiration) {
		c.removeElement(element)
		return nil, false
	}
	c.lruList.MoveToBack(element)
	return entry.value, true
}

func (c *LRUStore) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiration := c.now().Add(c.ttl)
	if element, found := c.entries[key]; found {
		c.lruList.MoveToBack(element)
		entry := element.Value.(*lruEntry)
		entry.value = value
		entry.expiration = expiration
		return
	}

	if c.lruList.Len() >= c.capacity {
		if oldest := c.lruList.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	element := c.lruList.PushBack(&lruEntry{key: key, value: value, expiration: expiration})
	c.entries[key] = element
}

// Len retorna o número de entradas, expiradas ou não
func (c *LRUStore) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lruList.Len()
}

// removeElement deve ser chamado com o lock
func (c *LRUStore) removeElement(element *list.Element) {
	c.lruList.Remove(element)
	delete(c.entries, element.Value.(*lruEntry).key)
}

var _ ExactStore = (*LRUStore)(nil)
