/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"fmt"
	"time"
)

// Window restricts a transfer to documents whose date field falls inside
// [From, To), from inclusive, to exclusive
type Window struct {
	Field string
	From  time.Time
	To    time.Time
}

func (w *Window) String() string {
	return fmt.Sprintf("%v:[%v,%v)", w.Field, w.From.Format("2006-01-02"), w.To.Format("2006-01-02"))
}

// RangeQuery renders the window as a range clause
func (w *Window) RangeQuery() map[string]interface{} {
	return map[string]interface{}{
		"range": map[string]interface{}{
			w.Field: map[string]interface{}{
				"gte": w.From.Format(time.RFC3339),
				"lt":  w.To.Format(time.RFC3339),
			},
		},
	}
}

// WindowSpec describes how to partition a transfer in time. Without a
// field the whole index is one unbounded job. Yearly mode cuts [From, To)
// at calendar year boundaries, each cut runs to completion before the next
// one starts.
type WindowSpec struct {
	Field  string
	From   time.Time
	To     time.Time
	Yearly bool
}

// Windows expands the spec into the ordered sequence of windows to run.
// A nil slice element list never happens, an empty spec yields one nil
// window meaning "no time filter".
func (s *WindowSpec) Windows() []*Window {
	if s == nil || s.Field == "" {
		return []*Window{nil}
	}

	if !s.Yearly {
		return []*Window{{Field: s.Field, From: s.From, To: s.To}}
	}

	windows := []*Window{}
	from := s.From
	for from.Before(s.To) {
		next := time.Date(from.Year()+1, time.January, 1, 0, 0, 0, 0, from.Location())
		if next.After(s.To) {
			next = s.To
		}
		windows = append(windows, &Window{Field: s.Field, From: from, To: next})
		from = next
	}
	return windows
}
