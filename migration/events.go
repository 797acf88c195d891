/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"io"
	"time"

	log "github.com/cihub/seelog"

	"infini.sh/migrate/core/util"
)

// TransferEvent is one state transition of one job, appended to the event
// log so an operator can tail the run from outside the process
type TransferEvent struct {
	Run       string    `json:"run"`
	Job       string    `json:"job"`
	Index     string    `json:"index"`
	Window    string    `json:"window,omitempty"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// EventLog appends JSON lines through a single writer goroutine, workers
// just send and never block each other on the underlying file
type EventLog struct {
	ch   chan TransferEvent
	done chan struct{}
}

func NewEventLog(w io.Writer) *EventLog {
	l := &EventLog{
		ch:   make(chan TransferEvent, 128),
		done: make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		for e := range l.ch {
			line := append(util.MustToJSONBytes(e), '\n')
			if _, err := w.Write(line); err != nil {
				log.Warnf("failed to append transfer event: %v", err)
			}
		}
	}()
	return l
}

func (l *EventLog) Append(e TransferEvent) {
	if l == nil {
		return
	}
	e.Timestamp = time.Now()
	l.ch <- e
}

// Close flushes pending events and stops the writer
func (l *EventLog) Close() {
	if l == nil {
		return
	}
	close(l.ch)
	<-l.done
}
