/* Copyright © INFINI Ltd. All rights reserved.
 * Web: https://infinilabs.com
 * Email: hello#infini.ltd */

package migration

import (
	"fmt"

	"github.com/pkg/errors"
)

// Cluster-level failures abort the whole run, everything below them is
// per-index and only skips the index concerned.
var (
	// ErrAuth means credentials were rejected, fatal, never retried
	ErrAuth = errors.New("authentication rejected")

	// ErrConnectivity means the cluster could not be reached at all
	ErrConnectivity = errors.New("cluster unreachable")

	// ErrNoIndices means enumeration found nothing to migrate
	ErrNoIndices = errors.New("no business indices found")
)

// FetchError covers a failed settings or mapping fetch for one index
type FetchError struct {
	Index string
	Cause error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch schema of index [%v]: %v", e.Index, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// SchemaRejectedError carries the engine-provided reason of a creation
// rejection, schema conflict or invalid setting
type SchemaRejectedError struct {
	Index   string
	Details string
}

func (e *SchemaRejectedError) Error() string {
	return fmt.Sprintf("target rejected schema of index [%v]: %v", e.Index, e.Details)
}

// TransferError marks one failed copy job, the batch proceeds
type TransferError struct {
	Index    string
	Window   *Window
	Duration string
	Cause    error
}

func (e *TransferError) Error() string {
	if e.Window != nil {
		return fmt.Sprintf("transfer of index [%v] window [%v] failed after %v: %v", e.Index, e.Window, e.Duration, e.Cause)
	}
	return fmt.Sprintf("transfer of index [%v] failed after %v: %v", e.Index, e.Duration, e.Cause)
}

func (e *TransferError) Unwrap() error { return e.Cause }
