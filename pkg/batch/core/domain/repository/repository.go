// Package repository defines persistence of pipeline run history.
package repository

// JobRepository persists JobExecution and StepExecution metadata.
type JobRepository interface {
	JobExecution
	StepExecution

	// Close releases resources (such as database connections) used by the repository.
	Close() error
}
