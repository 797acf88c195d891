/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/cihub/seelog"
	"github.com/emirpasic/gods/sets/hashset"
	"github.com/rs/xid"
)

// Copier is the bulk document transport collaborator, scoped to one index
// and optionally one time window. Implementations own their retry policy,
// the scheduler records a failed job and moves on.
type Copier interface {
	Copy(ctx context.Context, index string, window *Window) error
}

// JobStatus of a transfer job, terminal states are succeeded and failed
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one (index, window) transfer unit, mutated only by the worker
// executing it
type Job struct {
	ID     string
	Index  string
	Window *Window
	Status JobStatus
}

// TransferResult aggregates job outcomes of one run. Completed and Failed
// are disjoint, a job lands in exactly one of them.
type TransferResult struct {
	mu        sync.Mutex
	Completed *hashset.Set
	Failed    *hashset.Set
	Errors    []error
}

func newTransferResult() *TransferResult {
	return &TransferResult{
		Completed: hashset.New(),
		Failed:    hashset.New(),
	}
}

func (r *TransferResult) complete(index string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.Failed.Contains(index) {
		r.Completed.Add(index)
	}
}

func (r *TransferResult) fail(index string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed.Add(index)
	r.Completed.Remove(index)
	r.Errors = append(r.Errors, err)
}

// FailedNames returns the failed index names sorted, for the end-of-run
// summary operators replay from
func (r *TransferResult) FailedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := []string{}
	for _, v := range r.Failed.Values() {
		names = append(names, v.(string))
	}
	sort.Strings(names)
	return names
}

func (r *TransferResult) CompletedNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := []string{}
	for _, v := range r.Completed.Values() {
		names = append(names, v.(string))
	}
	sort.Strings(names)
	return names
}

// TransferScheduler drives a bounded pool of workers over (index, window)
// jobs. Windows run strictly one after another, indices inside a window run
// concurrently up to Concurrency.
type TransferScheduler struct {
	Concurrency int
	Copier      Copier
	Events      *EventLog

	runID string
}

func NewTransferScheduler(concurrency int, copier Copier, events *EventLog) *TransferScheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &TransferScheduler{
		Concurrency: concurrency,
		Copier:      copier,
		Events:      events,
		runID:       xid.New().String(),
	}
}

// Run processes every window of the spec in order. Cancelling the context
// stops issuing new jobs, jobs already running finish or fail naturally.
func (s *TransferScheduler) Run(ctx context.Context, indices []IndexDescriptor, spec *WindowSpec) *TransferResult {
	result := newTransferResult()

	for _, window := range spec.Windows() {
		if ctx.Err() != nil {
			log.Infof("run [%v] cancelled, skip remaining windows", s.runID)
			break
		}
		if window != nil {
			log.Infof("run [%v] start window %v", s.runID, window)
		}
		s.runWindow(ctx, indices, window, result)
	}

	return result
}

// runWindow is the per-window barrier, it returns only when every job of
// the window reached a terminal state
func (s *TransferScheduler) runWindow(ctx context.Context, indices []IndexDescriptor, window *Window, result *TransferResult) {
	jobs := make(chan *Job)
	wg := sync.WaitGroup{}

	for i := 0; i < s.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				s.execute(job, result)
			}
		}()
	}

	for _, idx := range indices {
		if ctx.Err() != nil {
			break
		}
		jobs <- &Job{
			ID:     xid.New().String(),
			Index:  idx.Name,
			Window: window,
			Status: JobPending,
		}
	}
	close(jobs)

	wg.Wait()
}

func (s *TransferScheduler) execute(job *Job, result *TransferResult) {
	windowStr := ""
	if job.Window != nil {
		windowStr = job.Window.String()
	}

	job.Status = JobRunning
	s.Events.Append(TransferEvent{Run: s.runID, Job: job.ID, Index: job.Index, Window: windowStr, State: string(JobRunning)})

	start := time.Now()
	// in-flight copies are never force-aborted, cancellation only stops
	// new jobs from being issued
	err := s.Copier.Copy(context.Background(), job.Index, job.Window)
	elapsed := time.Since(start)

	if err != nil {
		job.Status = JobFailed
		terr := &TransferError{Index: job.Index, Window: job.Window, Duration: elapsed.String(), Cause: err}
		result.fail(job.Index, terr)
		s.Events.Append(TransferEvent{Run: s.runID, Job: job.ID, Index: job.Index, Window: windowStr, State: string(JobFailed), Error: err.Error()})
		log.Error(terr.Error())
		return
	}

	job.Status = JobSucceeded
	result.complete(job.Index)
	s.Events.Append(TransferEvent{Run: s.runID, Job: job.ID, Index: job.Index, Window: windowStr, State: string(JobSucceeded)})
	log.Infof("transfer of index [%v]%v done in %v", job.Index, windowSuffix(windowStr), elapsed)
}

func windowSuffix(w string) string {
	if w == "" {
		return ""
	}
	return " window [" + w + "]"
}
