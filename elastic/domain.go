/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package elastic

// Indexes is a generic settings/mappings container keyed by index name
type Indexes map[string]interface{}

type ClusterVersion struct {
	Name        string `json:"name,omitempty"`
	ClusterName string `json:"cluster_name,omitempty"`
	Version     struct {
		Number        string `json:"number,omitempty"`
		Distribution  string `json:"distribution,omitempty"`
		LuceneVersion string `json:"lucene_version,omitempty"`
	} `json:"version,omitempty"`
}

type ClusterHealth struct {
	Name   string `json:"cluster_name,omitempty"`
	Status string `json:"status,omitempty"`
}

//{
//"health" : "green",
//"status" : "open",
//"index" : "logs-2024",
//"uuid" : "Q_Jm1mD2Syy8rcQFmQqIsg",
//"pri" : "1",
//"rep" : "0",
//"docs.count" : "17278",
//"store.size" : "2.9mb"
//}
type CatIndexResponse struct {
	Health       string `json:"health,omitempty"`
	Status       string `json:"status,omitempty"`
	Index        string `json:"index,omitempty"`
	Uuid         string `json:"uuid,omitempty"`
	Pri          string `json:"pri,omitempty"`
	Rep          string `json:"rep,omitempty"`
	DocsCount    string `json:"docs.count,omitempty"`
	DocsDeleted  string `json:"docs.deleted,omitempty"`
	StoreSize    string `json:"store.size,omitempty"`
	PriStoreSize string `json:"pri.store.size,omitempty"`
}

// IndexInfo is the parsed form of CatIndexResponse
type IndexInfo struct {
	ID        string `json:"id,omitempty"`
	Index     string `json:"index,omitempty"`
	Status    string `json:"status,omitempty"`
	Health    string `json:"health,omitempty"`
	Shards    int    `json:"shards,omitempty"`
	Replicas  int    `json:"replicas,omitempty"`
	DocsCount int64  `json:"docs_count,omitempty"`
	StoreSize string `json:"store_size,omitempty"`
}

type ReindexResponse struct {
	Task string `json:"task"`
}

// TaskFailure is one failed document within a reindex task result
type TaskFailure struct {
	Index  string      `json:"index,omitempty"`
	Id     string      `json:"id,omitempty"`
	Status int         `json:"status,omitempty"`
	Cause  interface{} `json:"cause,omitempty"`
}

// TaskResponse is the answer of GET /_tasks/{id}
type TaskResponse struct {
	Completed bool `json:"completed"`
	Task      struct {
		Node   string `json:"node,omitempty"`
		Id     int64  `json:"id,omitempty"`
		Action string `json:"action,omitempty"`
		Status struct {
			Total   int64 `json:"total,omitempty"`
			Created int64 `json:"created,omitempty"`
			Updated int64 `json:"updated,omitempty"`
			Deleted int64 `json:"deleted,omitempty"`
		} `json:"status,omitempty"`
	} `json:"task,omitempty"`
	Response struct {
		Total    int64         `json:"total,omitempty"`
		Created  int64         `json:"created,omitempty"`
		Updated  int64         `json:"updated,omitempty"`
		Failures []TaskFailure `json:"failures,omitempty"`
	} `json:"response,omitempty"`
	Error interface{} `json:"error,omitempty"`
}

// ScrollResponse carries the pieces of a scroll page we act on, Total and
// Docs are filled by parseScrollResponse which tolerates both the flat
// pre-7.0 hits.total and the {value,relation} object introduced in 7.0
type ScrollResponse struct {
	ScrollId string                   `json:"_scroll_id,omitempty"`
	TimedOut bool                     `json:"timed_out,omitempty"`
	Total    int64                    `json:"-"`
	Docs     []map[string]interface{} `json:"-"`
}
