/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"bytes"
	"context"
	"fmt"
	"time"

	log "github.com/cihub/seelog"

	"infini.sh/migrate/elastic"
)

// RowStatus classifies one index, every index maps to exactly one value
type RowStatus string

const (
	RowMatch    RowStatus = "match"
	RowMismatch RowStatus = "mismatch"
	RowMissing  RowStatus = "missing"
)

// ReconciliationRow compares one index across clusters, recomputed from
// live counts on every check and never persisted
type ReconciliationRow struct {
	Index       string    `json:"index"`
	SourceCount int64     `json:"source_count"`
	TargetCount int64     `json:"target_count"`
	Status      RowStatus `json:"status"`
	Difference  int64     `json:"difference,omitempty"`
	Percent     float64   `json:"percent,omitempty"`
	Warning     string    `json:"warning,omitempty"`
}

// Report is the outcome of one reconciliation pass
type Report struct {
	Rows      []ReconciliationRow `json:"rows"`
	SourceSum int64               `json:"source_sum"`
	TargetSum int64               `json:"target_sum"`
	Match     int                 `json:"match"`
	Mismatch  int                 `json:"mismatch"`
	Missing   int                 `json:"missing"`
}

// OverallPercent is target_sum*100/source_sum, 0 when there is nothing on
// the source side to compare against
func (r *Report) OverallPercent() float64 {
	if r.SourceSum == 0 {
		return 0
	}
	return float64(r.TargetSum) * 100 / float64(r.SourceSum)
}

// Converged reports whether every index matched
func (r *Report) Converged() bool {
	return r.Mismatch == 0 && r.Missing == 0
}

func (r *Report) String() string {
	buf := bytes.Buffer{}
	fmt.Fprintf(&buf, "%-40v %15v %15v %12v\n", "INDEX", "SOURCE", "TARGET", "STATUS")
	for _, row := range r.Rows {
		status := string(row.Status)
		if row.Status == RowMismatch {
			status = fmt.Sprintf("%v (%+d, %.1f%%)", row.Status, -row.Difference, row.Percent)
		}
		if row.Warning != "" {
			status += " !" + row.Warning
		}
		fmt.Fprintf(&buf, "%-40v %15v %15v %12v\n", row.Index, row.SourceCount, row.TargetCount, status)
	}
	fmt.Fprintf(&buf, "total: source=%v target=%v match=%v mismatch=%v missing=%v progress=%.1f%%\n",
		r.SourceSum, r.TargetSum, r.Match, r.Mismatch, r.Missing, r.OverallPercent())
	return buf.String()
}

// Reconciler compares per-index document counts between two clusters
type Reconciler struct {
	Source *elastic.API
	Target *elastic.API
}

// Check builds one report for the given indices. A failed count fetch is
// treated as zero with a warning so one flaky index cannot block the rest,
// missingness is decided by the existence probe alone since a zero count is
// ambiguous between absent and empty.
func (r *Reconciler) Check(ctx context.Context, indices []IndexDescriptor) *Report {
	report := &Report{}

	for _, idx := range indices {
		row := ReconciliationRow{Index: idx.Name}

		count, err := r.Source.Count(ctx, idx.Name)
		if err != nil {
			log.Warnf("failed to count index [%v] on source, treating as 0: %v", idx.Name, err)
			row.Warning = "source count unavailable"
		}
		row.SourceCount = count

		exists, err := r.Target.IndexExists(ctx, idx.Name)
		if err != nil {
			log.Warnf("existence probe of index [%v] failed, treating as missing: %v", idx.Name, err)
			exists = false
		}

		if !exists {
			row.Status = RowMissing
			report.Missing++
			report.Rows = append(report.Rows, row)
			continue
		}

		count, err = r.Target.Count(ctx, idx.Name)
		if err != nil {
			log.Warnf("failed to count index [%v] on target, treating as 0: %v", idx.Name, err)
			if row.Warning != "" {
				row.Warning = "counts unavailable"
			} else {
				row.Warning = "target count unavailable"
			}
		}
		row.TargetCount = count

		report.SourceSum += row.SourceCount
		report.TargetSum += row.TargetCount

		if row.SourceCount == row.TargetCount {
			row.Status = RowMatch
			report.Match++
		} else {
			row.Status = RowMismatch
			report.Mismatch++
			// may be negative when the target holds more than the source
			row.Difference = row.SourceCount - row.TargetCount
			if row.SourceCount > 0 {
				row.Percent = float64(row.TargetCount) * 100 / float64(row.SourceCount)
			}
		}

		report.Rows = append(report.Rows, row)
	}

	return report
}

// Watch re-runs Check on a fixed interval until the context is cancelled,
// invoking the callback with every fresh report. Purely periodic, there is
// no convergence detection.
func (r *Reconciler) Watch(ctx context.Context, indices []IndexDescriptor, interval time.Duration, fn func(*Report)) {
	if interval <= 0 {
		interval = 60 * time.Second
	}

	fn(r.Check(ctx, indices))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(r.Check(ctx, indices))
		}
	}
}
