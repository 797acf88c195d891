/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package elastic

import (
	"context"
	"fmt"

	"github.com/buger/jsonparser"
	log "github.com/cihub/seelog"
	"github.com/pkg/errors"

	"infini.sh/migrate/core/util"
)

// NewScroll opens a scroll over one index, query is an optional raw query
// clause restricting the copied documents
func (c *API) NewScroll(ctx context.Context, indexName string, scrollTime string, docBufferCount int, query map[string]interface{}) (*ScrollResponse, error) {
	url := fmt.Sprintf("%s/%s/_search?scroll=%s&size=%d", c.GetEndpoint(), util.UrlEncode(indexName), scrollTime, docBufferCount)

	queryBody := map[string]interface{}{
		"sort": []string{"_doc"},
	}
	if len(query) > 0 {
		queryBody["query"] = query
	}

	resp, err := c.Request(ctx, util.Verb_POST, url, util.MustToJSONBytes(queryBody))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		log.Error("response status:", resp.StatusCode)
		return nil, errors.New(string(resp.Body))
	}

	return parseScrollResponse(resp.Body)
}

// NextScroll fetches the next page of an open scroll
func (c *API) NextScroll(ctx context.Context, scrollTime string, scrollId string) (*ScrollResponse, error) {
	url := fmt.Sprintf("%s/_search/scroll?scroll=%s&scroll_id=%s", c.GetEndpoint(), scrollTime, scrollId)

	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}

	return parseScrollResponse(resp.Body)
}

// ClearScroll releases a scroll context early
func (c *API) ClearScroll(ctx context.Context, scrollId string) error {
	url := fmt.Sprintf("%s/_search/scroll", c.GetEndpoint())
	body := util.MustToJSONBytes(map[string]interface{}{"scroll_id": scrollId})
	_, err := c.Request(ctx, util.Verb_DELETE, url, body)
	return err
}

// parseScrollResponse reads the pieces we care about, tolerating the 7.0
// change of hits.total from a number to {value,relation}
func parseScrollResponse(body []byte) (*ScrollResponse, error) {
	scroll := &ScrollResponse{}

	scroll.ScrollId, _ = jsonparser.GetString(body, "_scroll_id")
	scroll.TimedOut, _ = jsonparser.GetBoolean(body, "timed_out")

	if total, err := jsonparser.GetInt(body, "hits", "total"); err == nil {
		scroll.Total = total
	} else if total, err := jsonparser.GetInt(body, "hits", "total", "value"); err == nil {
		scroll.Total = total
	}

	hits, _, _, err := jsonparser.Get(body, "hits", "hits")
	if err != nil {
		return nil, errors.Wrap(err, "malformed scroll response")
	}
	if err := util.FromJSONBytes(hits, &scroll.Docs); err != nil {
		return nil, err
	}

	return scroll, nil
}

// Bulk sends a raw bulk request body, the answer is checked for per-item
// failures
func (c *API) Bulk(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return errors.New("bulk data is empty")
	}

	url := fmt.Sprintf("%s/_bulk?filter_path=took,errors,items.*.error,items.*.status", c.GetEndpoint())
	resp, err := c.Request(ctx, util.Verb_POST, url, data)
	if err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return errors.New(string(resp.Body))
	}

	if hasErrors, _ := jsonparser.GetBoolean(resp.Body, "errors"); hasErrors {
		log.Warn(util.SubString(string(resp.Body), 0, 3000))
		return errors.New("bulk partial failure")
	}

	return nil
}
