/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package task

import (
	"context"

	log "github.com/cihub/seelog"
	"github.com/pkg/errors"

	"infini.sh/migrate/elastic"
)

// State of one remote task as seen by the task engine
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	// StateUnknown means the task engine has no record of the id, it
	// expired or never existed, which is not the same as still running
	StateUnknown State = "unknown"
)

// Status is the answer of one poll
type Status struct {
	Index        string `json:"index"`
	TaskID       string `json:"task_id"`
	State        State  `json:"state"`
	SuccessCount int64  `json:"success_count,omitempty"`
	FailureCount int64  `json:"failure_count,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Tracker persists task ids and polls their completion on demand, it does
// no scheduling of its own
type Tracker struct {
	Store  *Store
	Target *elastic.API
}

// Record durably maps the index to its transfer task
func (t *Tracker) Record(index, taskID string) error {
	return t.Store.Set(Record{Index: index, TaskID: taskID})
}

// Poll asks the task engine about the task recorded for index
func (t *Tracker) Poll(ctx context.Context, index string) (Status, error) {
	rec, err := t.Store.Get(index)
	if err != nil {
		return Status{Index: index}, err
	}
	return t.pollTask(ctx, rec)
}

// PollAll polls every recorded task, poll failures annotate the row rather
// than aborting the sweep
func (t *Tracker) PollAll(ctx context.Context) ([]Status, error) {
	records, err := t.Store.All()
	if err != nil {
		return nil, err
	}

	statuses := []Status{}
	for _, rec := range records {
		s, err := t.pollTask(ctx, rec)
		if err != nil {
			log.Warnf("failed to poll task [%v] of index [%v]: %v", rec.TaskID, rec.Index, err)
			s.Error = err.Error()
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

func (t *Tracker) pollTask(ctx context.Context, rec Record) (Status, error) {
	status := Status{Index: rec.Index, TaskID: rec.TaskID}

	resp, err := t.Target.GetTask(ctx, rec.TaskID)
	if err != nil {
		if errors.Is(err, elastic.ErrTaskNotFound) {
			status.State = StateUnknown
			return status, nil
		}
		return status, err
	}

	if !resp.Completed {
		status.State = StateRunning
		status.SuccessCount = resp.Task.Status.Created + resp.Task.Status.Updated
		return status, nil
	}

	status.State = StateCompleted
	status.SuccessCount = resp.Response.Created + resp.Response.Updated
	status.FailureCount = int64(len(resp.Response.Failures))
	return status, nil
}
