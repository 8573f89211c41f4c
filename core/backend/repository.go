package backend

import (
	"context"
)

// Repository is the storage of the records of one resource
type Repository interface {
	// FindAll returns all records in storage order
	FindAll(ctx context.Context) ([]Record, error)
	// FindByID returns the record with id. The boolean is false if there is no such record.
	FindByID(ctx context.Context, id int64) (Record, bool, error)
	// Save inserts the record if its ID is 0 and returns it with its new ID. Otherwise it
	// replaces all fields of the record with the same ID, or inserts it under that ID.
	Save(ctx context.Context, record Record) (Record, error)
	// Delete removes the record with the ID of record
	Delete(ctx context.Context, record Record) error
}

// RepositoryFactory creates the repository for a resource
type RepositoryFactory func(rc *ResourceConfiguration) (Repository, error)
