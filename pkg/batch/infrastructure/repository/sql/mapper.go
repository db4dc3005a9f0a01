package sql

import (
	"time"

	"github.com/tigerroll/citibike/pkg/batch/core/domain/model"
)

// Times are stored as UTC wall-clock values; the dialects disagree on zones.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func fromDomainJobExecution(je *model.JobExecution) *JobExecutionEntity {
	if je == nil {
		return nil
	}
	return &JobExecutionEntity{
		ID:              je.ID,
		JobName:         je.JobName,
		Parameters:      je.Parameters,
		StartTime:       utc(je.StartTime),
		EndTime:         utcPtr(je.EndTime),
		Status:          je.Status,
		ExitStatus:      je.ExitStatus,
		Failures:        je.Failures,
		CurrentStepName: je.CurrentStepName,
		LastUpdated:     utc(je.LastUpdated),
	}
}

func toDomainJobExecution(entity *JobExecutionEntity) *model.JobExecution {
	if entity == nil {
		return nil
	}
	je := &model.JobExecution{
		ID:               entity.ID,
		JobName:          entity.JobName,
		Parameters:       entity.Parameters,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		CurrentStepName:  entity.CurrentStepName,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: model.NewExecutionContext(),
	}
	if je.Parameters == nil {
		je.Parameters = model.NewJobParameters()
	}
	// StepExecutions are loaded by the repository.
	je.StepExecutions = make([]*model.StepExecution, 0)
	return je
}

func fromDomainStepExecution(se *model.StepExecution) *StepExecutionEntity {
	if se == nil {
		return nil
	}
	return &StepExecutionEntity{
		ID:             se.ID,
		JobExecutionID: se.JobExecutionID,
		StepName:       se.StepName,
		StartTime:      utc(se.StartTime),
		EndTime:        utcPtr(se.EndTime),
		Status:         se.Status,
		ExitStatus:     se.ExitStatus,
		Failures:       se.Failures,
		ReadCount:      se.ReadCount,
		WriteCount:     se.WriteCount,
		DeleteCount:    se.DeleteCount,
		LastUpdated:    utc(se.LastUpdated),
	}
}

func toDomainStepExecution(entity *StepExecutionEntity) *model.StepExecution {
	if entity == nil {
		return nil
	}
	return &model.StepExecution{
		ID:               entity.ID,
		StepName:         entity.StepName,
		JobExecutionID:   entity.JobExecutionID,
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		Status:           entity.Status,
		ExitStatus:       entity.ExitStatus,
		Failures:         entity.Failures,
		ReadCount:        entity.ReadCount,
		WriteCount:       entity.WriteCount,
		DeleteCount:      entity.DeleteCount,
		LastUpdated:      entity.LastUpdated,
		ExecutionContext: model.NewExecutionContext(),
	}
}
