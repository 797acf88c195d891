/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"bytes"
	"context"
	"time"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"infini.sh/migrate/core/progress"
	"infini.sh/migrate/core/util"
	"infini.sh/migrate/elastic"
)

// ScrollBulkCopier moves documents index by index, scrolling the source and
// bulk-indexing into the target with the original document ids, so
// re-running a partially copied index is an upsert, not a duplication
type ScrollBulkCopier struct {
	Source *elastic.API
	Target *elastic.API

	ScrollTime     string
	DocBufferCount int
	BulkSizeInMB   int
	MaxRetries     int
	RetryDelay     time.Duration

	// optional documents per second cap across all workers
	Limiter *rate.Limiter
}

func NewScrollBulkCopier(source, target *elastic.API) *ScrollBulkCopier {
	return &ScrollBulkCopier{
		Source:         source,
		Target:         target,
		ScrollTime:     "10m",
		DocBufferCount: 5000,
		BulkSizeInMB:   10,
		MaxRetries:     3,
		RetryDelay:     5 * time.Second,
	}
}

// Copy transfers one index, optionally restricted to a window
func (c *ScrollBulkCopier) Copy(ctx context.Context, index string, window *Window) error {

	var query map[string]interface{}
	if window != nil {
		query = window.RangeQuery()
	}

	scroll, err := c.Source.NewScroll(ctx, index, c.ScrollTime, c.DocBufferCount, query)
	if err != nil {
		return errors.Wrapf(err, "failed to open scroll on index [%v]", index)
	}

	total := int(scroll.Total)
	if total > 0 {
		progress.RegisterBar("transfer", index, total)
	}

	copied := 0
	for {
		if len(scroll.Docs) == 0 {
			break
		}

		if err := c.flush(ctx, index, scroll.Docs); err != nil {
			c.Source.ClearScroll(ctx, scroll.ScrollId)
			return err
		}
		copied += len(scroll.Docs)
		progress.IncreaseWithTotal("transfer", index, len(scroll.Docs), total)

		scrollID := scroll.ScrollId
		scroll, err = c.Source.NextScroll(ctx, c.ScrollTime, scrollID)
		if err != nil {
			c.Source.ClearScroll(ctx, scrollID)
			return errors.Wrapf(err, "scroll of index [%v] broke after %v docs", index, copied)
		}
	}

	c.Source.ClearScroll(ctx, scroll.ScrollId)
	log.Debugf("copied %v docs of index [%v]", copied, index)
	return nil
}

// flush bulk-indexes one scroll page, splitting on the configured bulk
// size and retrying each chunk up to MaxRetries with a fixed delay
func (c *ScrollBulkCopier) flush(ctx context.Context, index string, docs []map[string]interface{}) error {
	maxBytes := c.BulkSizeInMB * 1024 * 1024

	buf := bytes.Buffer{}
	count := 0
	for _, doc := range docs {
		id, _ := doc["_id"].(string)
		source, ok := doc["_source"]
		if !ok {
			continue
		}

		meta := map[string]interface{}{"_index": index}
		if id != "" {
			meta["_id"] = id
		}
		buf.Write(util.MustToJSONBytes(map[string]interface{}{"index": meta}))
		buf.WriteByte('\n')
		buf.Write(util.MustToJSONBytes(source))
		buf.WriteByte('\n')
		count++

		if buf.Len() >= maxBytes {
			if err := c.send(ctx, buf.Bytes(), count); err != nil {
				return err
			}
			buf.Reset()
			count = 0
		}
	}

	if buf.Len() > 0 {
		return c.send(ctx, buf.Bytes(), count)
	}
	return nil
}

func (c *ScrollBulkCopier) send(ctx context.Context, data []byte, count int) error {
	if c.Limiter != nil {
		if err := c.Limiter.WaitN(ctx, count); err != nil {
			return err
		}
	}

	var err error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warnf("bulk attempt %v/%v failed, retrying in %v: %v", attempt, c.MaxRetries, c.RetryDelay, err)
			time.Sleep(c.RetryDelay)
		}
		err = c.Target.Bulk(ctx, data)
		if err == nil {
			return nil
		}
	}
	return errors.Wrapf(err, "bulk rejected after %v retries", c.MaxRetries)
}
