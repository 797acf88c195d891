/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"infini.sh/migrate/elastic"
)

// countCluster serves _count per index and HEAD probes, an index absent
// from counts does not exist
func countCluster(t *testing.T, counts map[string]int64) *elastic.API {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		name = strings.TrimSuffix(name, "/_count")

		count, ok := counts[name]
		if !ok {
			w.WriteHeader(404)
			return
		}
		if r.Method == "HEAD" {
			w.WriteHeader(200)
			return
		}
		fmt.Fprintf(w, `{"count":%d}`, count)
	}))
	t.Cleanup(server.Close)
	return elastic.NewAPI(elastic.ClusterConfig{Endpoint: server.URL})
}

func rowByIndex(t *testing.T, report *Report, name string) ReconciliationRow {
	for _, row := range report.Rows {
		if row.Index == name {
			return row
		}
	}
	t.Fatalf("no row for index [%v]", name)
	return ReconciliationRow{}
}

func TestCheckMissingExcludedFromSums(t *testing.T) {
	source := countCluster(t, map[string]int64{"a": 100, "b": 0, "c": 50})
	target := countCluster(t, map[string]int64{"a": 100, "b": 0})

	r := &Reconciler{Source: source, Target: target}
	report := r.Check(context.Background(), descriptors("a", "b", "c"))

	assert.Equal(t, RowMatch, rowByIndex(t, report, "a").Status)
	assert.Equal(t, RowMatch, rowByIndex(t, report, "b").Status)
	assert.Equal(t, RowMissing, rowByIndex(t, report, "c").Status)

	// c exists on neither side of the sums
	assert.Equal(t, int64(100), report.SourceSum)
	assert.Equal(t, int64(100), report.TargetSum)
	assert.Equal(t, float64(100), report.OverallPercent())
	assert.Equal(t, 2, report.Match)
	assert.Equal(t, 1, report.Missing)
	assert.False(t, report.Converged())
}

func TestCheckMismatch(t *testing.T) {
	source := countCluster(t, map[string]int64{"orders": 1000})
	target := countCluster(t, map[string]int64{"orders": 750})

	r := &Reconciler{Source: source, Target: target}
	report := r.Check(context.Background(), descriptors("orders"))

	row := rowByIndex(t, report, "orders")
	assert.Equal(t, RowMismatch, row.Status)
	assert.Equal(t, int64(250), row.Difference)
	assert.Equal(t, float64(75), row.Percent)
	assert.Equal(t, float64(75), report.OverallPercent())
	assert.False(t, report.Converged())
}

func TestCheckNegativeDifference(t *testing.T) {
	source := countCluster(t, map[string]int64{"orders": 100})
	target := countCluster(t, map[string]int64{"orders": 120})

	r := &Reconciler{Source: source, Target: target}
	report := r.Check(context.Background(), descriptors("orders"))

	row := rowByIndex(t, report, "orders")
	assert.Equal(t, RowMismatch, row.Status)
	assert.Equal(t, int64(-20), row.Difference)
	assert.Equal(t, float64(120), row.Percent)
}

func TestCheckCountFetchFailure(t *testing.T) {
	// source cluster is unreachable, counts degrade to zero with a warning
	source := elastic.NewAPI(elastic.ClusterConfig{Endpoint: "http://127.0.0.1:1"})
	target := countCluster(t, map[string]int64{"orders": 10})

	r := &Reconciler{Source: source, Target: target}
	report := r.Check(context.Background(), descriptors("orders"))

	row := rowByIndex(t, report, "orders")
	assert.Equal(t, int64(0), row.SourceCount)
	assert.Equal(t, "source count unavailable", row.Warning)
	assert.Equal(t, RowMismatch, row.Status)
	assert.Equal(t, float64(0), report.OverallPercent())
}

func TestCheckEmptySource(t *testing.T) {
	r := &Reconciler{
		Source: countCluster(t, map[string]int64{}),
		Target: countCluster(t, map[string]int64{}),
	}
	report := r.Check(context.Background(), nil)
	assert.Equal(t, float64(0), report.OverallPercent())
	assert.True(t, report.Converged())
}

func TestWatchPeriodic(t *testing.T) {
	source := countCluster(t, map[string]int64{"a": 1})
	target := countCluster(t, map[string]int64{"a": 1})
	r := &Reconciler{Source: source, Target: target}

	ctx, cancel := context.WithCancel(context.Background())
	var checks int32
	go func() {
		r.Watch(ctx, descriptors("a"), 10*time.Millisecond, func(report *Report) {
			if atomic.AddInt32(&checks, 1) >= 3 {
				cancel()
			}
		})
	}()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&checks) >= 3
	}, 2*time.Second, 5*time.Millisecond)
}
