/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"

	log "github.com/cihub/seelog"

	"infini.sh/migrate/elastic"
)

// SchemaOutcome is the result of replicating one index schema
type SchemaOutcome int

const (
	SchemaCreated SchemaOutcome = iota
	SchemaAlreadyExists
	SchemaFailed
)

func (o SchemaOutcome) String() string {
	switch o {
	case SchemaCreated:
		return "created"
	case SchemaAlreadyExists:
		return "already_exists"
	}
	return "failed"
}

// SchemaReplicator copies index settings and mappings from source to target
type SchemaReplicator struct {
	Source *elastic.API
	Target *elastic.API
}

// settings the engine owns per index, never part of a creation payload
var privateSettings = []string{"uuid", "version", "creation_date", "provided_name", "history", "routing"}

// Replicate fetches the schema of one index from source and creates the
// index on target when absent. Safe to re-run, an existing target index is
// left untouched.
func (r *SchemaReplicator) Replicate(ctx context.Context, indexName string) (SchemaOutcome, error) {

	settings, err := r.Source.GetIndexSettings(ctx, indexName)
	if err != nil {
		return SchemaFailed, &FetchError{Index: indexName, Cause: err}
	}
	mappings, err := r.Source.GetMapping(ctx, indexName)
	if err != nil {
		return SchemaFailed, &FetchError{Index: indexName, Cause: err}
	}

	exists, err := r.Target.IndexExists(ctx, indexName)
	if err != nil {
		return SchemaFailed, &FetchError{Index: indexName, Cause: err}
	}
	if exists {
		log.Debugf("index [%v] already exists on target, skip creation", indexName)
		return SchemaAlreadyExists, nil
	}

	payload := buildCreationPayload(indexName, settings, mappings)

	if err := r.Target.CreateIndex(ctx, indexName, payload); err != nil {
		return SchemaFailed, &SchemaRejectedError{Index: indexName, Details: err.Error()}
	}

	log.Infof("created index [%v] on target", indexName)
	return SchemaCreated, nil
}

// buildCreationPayload merges fetched settings and mappings into one PUT
// body. A malformed response shape degrades to an empty payload instead of
// failing the index, the engine then applies its defaults.
func buildCreationPayload(indexName string, settings, mappings elastic.Indexes) map[string]interface{} {
	payload := map[string]interface{}{}

	if s, ok := settings[indexName].(map[string]interface{}); ok {
		if inner, ok := s["settings"].(map[string]interface{}); ok {
			if idx, ok := inner["index"].(map[string]interface{}); ok {
				for _, k := range privateSettings {
					delete(idx, k)
				}
			}
			payload["settings"] = inner
		}
	}

	if m, ok := mappings[indexName].(map[string]interface{}); ok {
		if inner, ok := m["mappings"]; ok {
			payload["mappings"] = inner
		}
	}

	if len(payload) == 0 {
		log.Warnf("unexpected schema shape for index [%v], creating with engine defaults", indexName)
	}

	return payload
}
