/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package task

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func openTempStore(t *testing.T) *Store {
	store, err := OpenStore(t.TempDir(), false)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSetGet(t *testing.T) {
	store := openTempStore(t)

	err := store.Set(Record{Index: "orders", TaskID: "node-1:42"})
	assert.NoError(t, err)

	rec, err := store.Get("orders")
	assert.NoError(t, err)
	assert.Equal(t, "orders", rec.Index)
	assert.Equal(t, "node-1:42", rec.TaskID)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestStoreGetNotFound(t *testing.T) {
	store := openTempStore(t)

	_, err := store.Get("never-recorded")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreOverwrite(t *testing.T) {
	store := openTempStore(t)

	assert.NoError(t, store.Set(Record{Index: "orders", TaskID: "node-1:42"}))
	assert.NoError(t, store.Set(Record{Index: "orders", TaskID: "node-2:99"}))

	rec, err := store.Get("orders")
	assert.NoError(t, err)
	assert.Equal(t, "node-2:99", rec.TaskID)

	records, err := store.All()
	assert.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestStoreAllOrdered(t *testing.T) {
	store := openTempStore(t)

	for _, name := range []string{"c", "a", "b"} {
		assert.NoError(t, store.Set(Record{Index: name, TaskID: "t-" + name}))
	}

	records, err := store.All()
	assert.NoError(t, err)
	assert.Len(t, records, 3)
	assert.Equal(t, "a", records[0].Index)
	assert.Equal(t, "b", records[1].Index)
	assert.Equal(t, "c", records[2].Index)
}

func TestStoreDelete(t *testing.T) {
	store := openTempStore(t)

	assert.NoError(t, store.Set(Record{Index: "orders", TaskID: "node-1:42"}))
	assert.NoError(t, store.Delete("orders"))

	_, err := store.Get("orders")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreConcurrentWriters(t *testing.T) {
	store := openTempStore(t)
	tracker := &Tracker{Store: store}

	// distinct indices from many workers, plus every worker colliding on
	// one shared index, the way parallel reindex submissions do
	const workers = 16
	wg := sync.WaitGroup{}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := fmt.Sprintf("index-%02d", n)
			assert.NoError(t, tracker.Record(name, fmt.Sprintf("node-1:%d", n)))
			assert.NoError(t, tracker.Record("shared", fmt.Sprintf("node-2:%d", n)))
		}(i)
	}
	wg.Wait()

	records, err := store.All()
	assert.NoError(t, err)
	assert.Len(t, records, workers+1)

	for i := 0; i < workers; i++ {
		rec, err := store.Get(fmt.Sprintf("index-%02d", i))
		assert.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("node-1:%d", i), rec.TaskID)
	}

	// the shared key holds exactly one of the competing writes, intact
	rec, err := store.Get("shared")
	assert.NoError(t, err)
	assert.Contains(t, rec.TaskID, "node-2:")
}

func TestStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir, false)
	assert.NoError(t, err)
	assert.NoError(t, store.Set(Record{Index: "orders", TaskID: "node-1:42"}))
	assert.NoError(t, store.Close())

	store, err = OpenStore(dir, true)
	assert.NoError(t, err)
	defer store.Close()

	rec, err := store.Get("orders")
	assert.NoError(t, err)
	assert.Equal(t, "node-1:42", rec.TaskID)
}
