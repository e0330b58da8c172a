// Package blob selects and constructs the blob store that holds component
// files. Callers depend on Store; only this package imports the backends.
package blob

import "workspacemodel/internal/blob/core"

type (
	// Driver identifies a blob backend.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the blob storage contract.
	Store = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// ErrNotFound is wrapped by Get and Head for missing keys.
var ErrNotFound = core.ErrNotFound
