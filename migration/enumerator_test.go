/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"infini.sh/migrate/elastic"
)

func TestSystemIndexFilter(t *testing.T) {
	filter, err := NewSystemIndexFilter(nil)
	assert.NoError(t, err)

	assert.True(t, filter.IsSystem(".kibana"))
	assert.True(t, filter.IsSystem(".security-7"))
	assert.False(t, filter.IsSystem("orders"))
	assert.False(t, filter.IsSystem("logs-2024"))
}

func TestSystemIndexFilterExtraPatterns(t *testing.T) {
	filter, err := NewSystemIndexFilter([]string{"internal", "kibana", "^alerts"})
	assert.NoError(t, err)

	assert.True(t, filter.IsSystem("my-internal-data"))
	assert.True(t, filter.IsSystem("kibana_sample_data"))
	assert.True(t, filter.IsSystem("alerts-2024"))
	assert.False(t, filter.IsSystem("orders-alerts")) // anchored pattern
	assert.False(t, filter.IsSystem("orders"))
}

func TestSystemIndexFilterBadPattern(t *testing.T) {
	_, err := NewSystemIndexFilter([]string{"["})
	assert.Error(t, err)
}

func fakeCatCluster(t *testing.T) *elastic.API {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(`{"version":{"number":"7.10.2"}}`))
			return
		}
		w.Write([]byte(`[
			{"index":"orders","docs.count":"1000","store.size":"1mb"},
			{"index":"logs-2024","docs.count":"500","store.size":"2mb"},
			{"index":".kibana","docs.count":"5","store.size":"1kb"},
			{"index":".tasks","docs.count":"2","store.size":"1kb"}
		]`))
	}))
	t.Cleanup(server.Close)
	return elastic.NewAPI(elastic.ClusterConfig{Name: "src", Endpoint: server.URL})
}

func TestListBusinessIndices(t *testing.T) {
	api := fakeCatCluster(t)
	filter, _ := NewSystemIndexFilter(nil)

	indices, err := ListBusinessIndices(context.Background(), api, filter)
	assert.NoError(t, err)
	assert.Len(t, indices, 2)
	// sorted by name, deterministic across calls
	assert.Equal(t, "logs-2024", indices[0].Name)
	assert.Equal(t, "orders", indices[1].Name)
	assert.Equal(t, int64(1000), indices[1].DocsCount)

	// pure filter, idempotent against unchanged cluster state
	again, err := ListBusinessIndices(context.Background(), api, filter)
	assert.NoError(t, err)
	assert.Equal(t, indices, again)
}

func TestListBusinessIndicesAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Write([]byte(`{"version":{"number":"7.10.2"}}`))
			return
		}
		w.WriteHeader(403)
	}))
	t.Cleanup(server.Close)
	api := elastic.NewAPI(elastic.ClusterConfig{Name: "src", Endpoint: server.URL})

	filter, _ := NewSystemIndexFilter(nil)
	_, err := ListBusinessIndices(context.Background(), api, filter)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestListBusinessIndicesConnectivityError(t *testing.T) {
	api := elastic.NewAPI(elastic.ClusterConfig{Name: "src", Endpoint: "http://127.0.0.1:1"})
	filter, _ := NewSystemIndexFilter(nil)

	_, err := ListBusinessIndices(context.Background(), api, filter)
	assert.ErrorIs(t, err, ErrConnectivity)
}
