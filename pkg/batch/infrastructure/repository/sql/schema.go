package sql

import (
	"time"

	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

// JobExecutionEntity is a schema model used for persistence.
type JobExecutionEntity struct {
	ID              string              `gorm:"column:id;primaryKey"`
	JobName         string              `gorm:"column:job_name"`
	Parameters      model.JobParameters `gorm:"column:parameters"`
	StartTime       time.Time           `gorm:"column:start_time"`
	EndTime         *time.Time          `gorm:"column:end_time"`
	Status          model.JobStatus     `gorm:"column:status"`
	ExitStatus      model.ExitStatus    `gorm:"column:exit_status"`
	Failures        model.FailureList   `gorm:"column:failures"`
	CurrentStepName string              `gorm:"column:current_step_name"`
	LastUpdated     time.Time           `gorm:"column:last_updated"`
}

func (JobExecutionEntity) TableName() string {
	return "batch_job_execution"
}

// StepExecutionEntity is a schema model used for persistence.
type StepExecutionEntity struct {
	ID             string            `gorm:"column:id;primaryKey"`
	JobExecutionID string            `gorm:"column:job_execution_id"`
	StepName       string            `gorm:"column:step_name"`
	StartTime      time.Time         `gorm:"column:start_time"`
	EndTime        *time.Time        `gorm:"column:end_time"`
	Status         model.JobStatus   `gorm:"column:status"`
	ExitStatus     model.ExitStatus  `gorm:"column:exit_status"`
	Failures       model.FailureList `gorm:"column:failures"`
	ReadCount      int64             `gorm:"column:read_count"`
	WriteCount     int64             `gorm:"column:write_count"`
	DeleteCount    int64             `gorm:"column:delete_count"`
	LastUpdated    time.Time         `gorm:"column:last_updated"`
}

func (StepExecutionEntity) TableName() string {
	return "batch_step_execution"
}
