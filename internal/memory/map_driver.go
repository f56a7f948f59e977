package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/entrepeneur4lyf/paycopilot/internal/llm"
)

// MapDriver is a process-local Driver.
type MapDriver struct {
	mu    sync.RWMutex
	chats map[string][]llm.Message
}

func NewMapDriver() *MapDriver {
	return &MapDriver{chats: make(map[string][]llm.Message)}
}

func (d *MapDriver) Get(_ context.Context, id string) ([]llm.Message, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	msgs, ok := d.chats[id]
	return slices.Clone(msgs), ok, nil
}

func (d *MapDriver) Update(_ context.Context, id string, fn func([]llm.Message) []llm.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chats[id] = slices.Clone(fn(slices.Clone(d.chats[id])))
	return nil
}

func (d *MapDriver) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.chats, id)
	return nil
}

func (d *MapDriver) Exists(_ context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.chats[id]
	return ok, nil
}
