/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"

	coreerrors "infini.sh/migrate/core/errors"
	"infini.sh/migrate/core/util"
	"infini.sh/migrate/elastic"
	"infini.sh/migrate/task"
)

// RemoteReindexer submits server-side copies: the target cluster pulls
// documents straight from the source over its remote reindex support, one
// async task per index, ids recorded for later polling
type RemoteReindexer struct {
	Source  elastic.ClusterConfig
	Target  *elastic.API
	Tracker *task.Tracker
}

// Start submits one reindex task per index. Per-index failures are
// collected, the batch never stops early.
func (r *RemoteReindexer) Start(ctx context.Context, indices []IndexDescriptor, window *Window) (int, error) {
	errs := coreerrors.Errors{}
	started := 0

	for _, idx := range indices {
		if ctx.Err() != nil {
			break
		}

		body := r.buildBody(idx.Name, window)
		resp, err := r.Target.Reindex(ctx, body)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to start reindex of index [%v]", idx.Name))
			continue
		}

		if err := r.Tracker.Record(idx.Name, resp.Task); err != nil {
			errs = append(errs, errors.Wrapf(err, "reindex of index [%v] started as task [%v] but could not be recorded", idx.Name, resp.Task))
			continue
		}

		log.Infof("reindex of index [%v] running as task [%v]", idx.Name, resp.Task)
		started++
	}

	return started, errs.Err()
}

func (r *RemoteReindexer) buildBody(indexName string, window *Window) []byte {
	remote := map[string]interface{}{
		"host": r.Source.Endpoint,
	}
	if r.Source.Username != "" {
		remote["username"] = r.Source.Username
		remote["password"] = r.Source.Password
	}

	source := map[string]interface{}{
		"remote": remote,
		"index":  indexName,
	}
	if window != nil {
		source["query"] = window.RangeQuery()
	}

	return util.MustToJSONBytes(map[string]interface{}{
		"source":    source,
		"dest":      map[string]interface{}{"index": indexName},
		"conflicts": "proceed",
	})
}
