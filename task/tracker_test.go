/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"infini.sh/migrate/elastic"
)

const runningTask = `{"completed":false,"task":{"status":{"total":1000,"created":400,"updated":50}}}`

const completedTask = `{"completed":true,
	"task":{"status":{"total":1000,"created":1000,"updated":0}},
	"response":{"total":1000,"created":990,"updated":8,"failures":[{"index":"orders","id":"7","status":409}]}}`

// taskEngine answers _tasks/{id} from a fixed table, unknown ids get the
// resource_not_found_exception shape real clusters return
func taskEngine(t *testing.T, tasks map[string]string) *elastic.API {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/_tasks/")
		body, ok := tasks[id]
		if !ok {
			w.WriteHeader(404)
			w.Write([]byte(`{"error":{"type":"resource_not_found_exception","reason":"task [` + id + `] isn't running and hasn't stored its results"}}`))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return elastic.NewAPI(elastic.ClusterConfig{Endpoint: server.URL})
}

func TestPollRunning(t *testing.T) {
	tracker := &Tracker{
		Store:  openTempStore(t),
		Target: taskEngine(t, map[string]string{"node-1:42": runningTask}),
	}
	assert.NoError(t, tracker.Record("orders", "node-1:42"))

	status, err := tracker.Poll(context.Background(), "orders")
	assert.NoError(t, err)
	assert.Equal(t, StateRunning, status.State)
	assert.Equal(t, int64(450), status.SuccessCount)
}

func TestPollCompleted(t *testing.T) {
	tracker := &Tracker{
		Store:  openTempStore(t),
		Target: taskEngine(t, map[string]string{"node-1:42": completedTask}),
	}
	assert.NoError(t, tracker.Record("orders", "node-1:42"))

	status, err := tracker.Poll(context.Background(), "orders")
	assert.NoError(t, err)
	assert.Equal(t, StateCompleted, status.State)
	assert.Equal(t, int64(998), status.SuccessCount)
	assert.Equal(t, int64(1), status.FailureCount)
}

func TestPollUnknownNotRunning(t *testing.T) {
	// an expired task id yields unknown, never running
	tracker := &Tracker{
		Store:  openTempStore(t),
		Target: taskEngine(t, map[string]string{}),
	}
	assert.NoError(t, tracker.Record("orders", "node-1:42"))

	status, err := tracker.Poll(context.Background(), "orders")
	assert.NoError(t, err)
	assert.Equal(t, StateUnknown, status.State)
	assert.NotEqual(t, StateRunning, status.State)
}

func TestPollNoRecord(t *testing.T) {
	tracker := &Tracker{
		Store:  openTempStore(t),
		Target: taskEngine(t, map[string]string{}),
	}

	_, err := tracker.Poll(context.Background(), "orders")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPollAll(t *testing.T) {
	tracker := &Tracker{
		Store: openTempStore(t),
		Target: taskEngine(t, map[string]string{
			"t-a": runningTask,
			"t-b": completedTask,
		}),
	}
	assert.NoError(t, tracker.Record("a", "t-a"))
	assert.NoError(t, tracker.Record("b", "t-b"))
	assert.NoError(t, tracker.Record("c", "t-gone"))

	statuses, err := tracker.PollAll(context.Background())
	assert.NoError(t, err)
	assert.Len(t, statuses, 3)
	assert.Equal(t, StateRunning, statuses[0].State)
	assert.Equal(t, StateCompleted, statuses[1].State)
	assert.Equal(t, StateUnknown, statuses[2].State)
}

func TestPollAllContinuesPastErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "t-broken") {
			w.WriteHeader(500)
			w.Write([]byte(`{"error":{"type":"internal_server_error"}}`))
			return
		}
		w.Write([]byte(completedTask))
	}))
	t.Cleanup(server.Close)

	tracker := &Tracker{
		Store:  openTempStore(t),
		Target: elastic.NewAPI(elastic.ClusterConfig{Endpoint: server.URL}),
	}
	assert.NoError(t, tracker.Record("a", "t-broken"))
	assert.NoError(t, tracker.Record("b", "t-fine"))

	// the broken task annotates its row, the sweep still reaches b
	statuses, err := tracker.PollAll(context.Background())
	assert.NoError(t, err)
	assert.Len(t, statuses, 2)
	assert.NotEmpty(t, statuses[0].Error)
	assert.Equal(t, "a", statuses[0].Index)
	assert.Equal(t, StateCompleted, statuses[1].State)
	assert.Empty(t, statuses[1].Error)
}
