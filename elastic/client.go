/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package elastic

import (
	"context"
	"fmt"
	"sync"

	"github.com/buger/jsonparser"
	log "github.com/cihub/seelog"
	"github.com/pkg/errors"

	"infini.sh/migrate/core/util"
)

// ClusterConfig describes how to reach one cluster, credentials live here
// rather than inside URLs
type ClusterConfig struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Username  string `yaml:"username,omitempty" json:"username,omitempty"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	HTTPProxy string `yaml:"http_proxy,omitempty" json:"http_proxy,omitempty"`
}

// API is a minimal versioned REST client for one cluster, either
// elasticsearch or opensearch flavor
type API struct {
	Config ClusterConfig

	versionOnce sync.Once
	version     string
}

func NewAPI(cfg ClusterConfig) *API {
	return &API{Config: cfg}
}

func (c *API) GetEndpoint() string {
	return c.Config.Endpoint
}

// Request issues one call against the cluster, attaching auth and proxy
// from the cluster config
func (c *API) Request(ctx context.Context, method, url string, body []byte) (*util.Result, error) {

	var req *util.Request

	switch method {
	case util.Verb_GET:
		req = util.NewGetRequest(url, body)
	case util.Verb_PUT:
		req = util.NewPutRequest(url, body)
	case util.Verb_POST:
		req = util.NewPostRequest(url, body)
	case util.Verb_DELETE:
		req = util.NewDeleteRequest(url, body)
	case util.Verb_HEAD:
		req = util.NewHeadRequest(url)
	default:
		return nil, errors.Errorf("unsupported method: %v", method)
	}

	req.SetContentType(util.ContentTypeJson)

	if c.Config.Username != "" {
		req.SetBasicAuth(c.Config.Username, c.Config.Password)
	}

	if c.Config.HTTPProxy != "" {
		req.SetProxy(c.Config.HTTPProxy)
	}

	if ctx != nil {
		req.SetContext(ctx)
	}

	return util.ExecuteRequest(req)
}

// GetVersion fetches and caches the cluster version number
func (c *API) GetVersion(ctx context.Context) string {
	c.versionOnce.Do(func() {
		resp, err := c.Request(ctx, util.Verb_GET, c.GetEndpoint(), nil)
		if err != nil || resp.StatusCode != 200 {
			log.Warnf("failed to get version of cluster [%v], fallback to v0", c.Config.Name)
			return
		}
		v := ClusterVersion{}
		if err := util.FromJSONBytes(resp.Body, &v); err != nil {
			log.Warn("malformed version response:", err)
			return
		}
		c.version = v.Version.Number
	})
	return c.version
}

func (c *API) ClusterHealth(ctx context.Context) (*ClusterHealth, error) {
	url := fmt.Sprintf("%s/_cluster/health", c.GetEndpoint())
	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}
	health := &ClusterHealth{}
	err = util.FromJSONBytes(resp.Body, health)
	return health, err
}

// GetIndices lists indices via cat api, pattern is optional
func (c *API) GetIndices(ctx context.Context, pattern string) (map[string]IndexInfo, error) {
	format := "%s/_cat/indices%s?h=health,status,index,uuid,pri,rep,docs.count,docs.deleted,store.size,pri.store.size&format=json"
	if ver := c.GetVersion(ctx); ver != "" {
		if cr, err := util.VersionCompare(ver, "7.7"); err == nil && cr > -1 {
			format += "&expand_wildcards=all"
		}
	}
	if pattern != "" {
		pattern = "/" + util.UrlEncode(pattern)
	}
	url := fmt.Sprintf(format, c.GetEndpoint(), pattern)

	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 401 || resp.StatusCode == 403 {
		return nil, ErrAccessDenied
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}

	data := []CatIndexResponse{}
	if err = util.FromJSONBytes(resp.Body, &data); err != nil {
		return nil, err
	}

	indexInfo := map[string]IndexInfo{}
	for _, v := range data {
		info := IndexInfo{}
		info.ID = v.Uuid
		info.Index = v.Index
		info.Status = v.Status
		info.Health = v.Health
		info.Shards, _ = util.ToInt(v.Pri)
		info.Replicas, _ = util.ToInt(v.Rep)
		info.DocsCount, _ = util.ToInt64(v.DocsCount)
		info.StoreSize = v.StoreSize
		indexInfo[v.Index] = info
	}

	return indexInfo, nil
}

// ErrAccessDenied is returned when the cluster rejects our credentials
var ErrAccessDenied = errors.New("access denied")

// GetIndexSettings returns the settings document keyed by index name
func (c *API) GetIndexSettings(ctx context.Context, indexName string) (Indexes, error) {
	url := fmt.Sprintf("%s/%s/_settings", c.GetEndpoint(), util.UrlEncode(indexName))

	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}

	settings := Indexes{}
	if err = util.FromJSONBytes(resp.Body, &settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// GetMapping returns the mapping document keyed by index name, wrapping a
// bare mapping in {"mappings": ...} for super old clusters
func (c *API) GetMapping(ctx context.Context, indexName string) (Indexes, error) {
	url := fmt.Sprintf("%s/%s/_mapping", c.GetEndpoint(), util.UrlEncode(indexName))

	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}

	idxs := Indexes{}
	if err = util.FromJSONBytes(resp.Body, &idxs); err != nil {
		return nil, err
	}

	for name, idx := range idxs {
		if m, ok := idx.(map[string]interface{}); ok {
			if _, ok := m["mappings"]; !ok {
				idxs[name] = map[string]interface{}{
					"mappings": idx,
				}
			}
		}
	}

	return idxs, nil
}

// IndexExists probes the index with a HEAD request
func (c *API) IndexExists(ctx context.Context, indexName string) (bool, error) {
	url := fmt.Sprintf("%s/%s", c.GetEndpoint(), util.UrlEncode(indexName))
	resp, err := c.Request(ctx, util.Verb_HEAD, url, nil)
	if err != nil {
		return false, err
	}
	return resp.StatusCode == 200, nil
}

// CreateIndex creates the index with the given payload, the caller gets the
// raw engine answer on rejection
func (c *API) CreateIndex(ctx context.Context, indexName string, payload map[string]interface{}) error {
	var body []byte
	if len(payload) > 0 {
		body = util.MustToJSONBytes(payload)
	}

	url := fmt.Sprintf("%s/%s", c.GetEndpoint(), util.UrlEncode(indexName))

	resp, err := c.Request(ctx, util.Verb_PUT, url, body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return errors.New(string(resp.Body))
	}
	return nil
}

// Count returns the number of documents in the index
func (c *API) Count(ctx context.Context, indexName string) (int64, error) {
	url := fmt.Sprintf("%s/%s/_count", c.GetEndpoint(), util.UrlEncode(indexName))

	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != 200 {
		return 0, errors.New(string(resp.Body))
	}

	count, err := jsonparser.GetInt(resp.Body, "count")
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Reindex submits an async reindex and returns the task id
func (c *API) Reindex(ctx context.Context, body []byte) (*ReindexResponse, error) {
	url := fmt.Sprintf("%s/_reindex?wait_for_completion=false", c.GetEndpoint())
	resp, err := c.Request(ctx, util.Verb_POST, url, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, errors.New(string(resp.Body))
	}
	reindexResponse := &ReindexResponse{}
	if err = util.FromJSONBytes(resp.Body, reindexResponse); err != nil {
		return nil, err
	}
	if reindexResponse.Task == "" {
		return nil, errors.New("reindex accepted but no task id returned")
	}
	return reindexResponse, nil
}

// ErrTaskNotFound is returned when the task engine has no record of the id,
// expired or invalid, which is not the same as still running
var ErrTaskNotFound = errors.New("task not found")

// GetTask fetches the status of an async task
func (c *API) GetTask(ctx context.Context, taskID string) (*TaskResponse, error) {
	url := fmt.Sprintf("%s/_tasks/%s", c.GetEndpoint(), util.UrlEncode(taskID))
	resp, err := c.Request(ctx, util.Verb_GET, url, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == 404 {
		return nil, ErrTaskNotFound
	}
	if resp.StatusCode != 200 {
		// resource_not_found_exception also means the task record was evicted
		if t, err := jsonparser.GetString(resp.Body, "error", "type"); err == nil && util.ContainStr(t, "not_found") {
			return nil, ErrTaskNotFound
		}
		return nil, errors.New(string(resp.Body))
	}
	task := &TaskResponse{}
	if err = util.FromJSONBytes(resp.Body, task); err != nil {
		return nil, err
	}
	return task, nil
}
