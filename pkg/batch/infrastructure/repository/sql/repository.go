// Package sql persists the run history in the warehouse database through the
// gorm database adapter.
package sql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/citibike/pkg/batch/adapter/database"
	"github.com/tigerroll/citibike/pkg/batch/core/config"
	model "github.com/tigerroll/citibike/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/citibike/pkg/batch/core/domain/repository"
	"github.com/tigerroll/citibike/pkg/batch/support/util/exception"
	"github.com/tigerroll/citibike/pkg/batch/support/util/logger"
)

// SQLJobRepository implements the repository.JobRepository interface.
type SQLJobRepository struct {
	dbResolver database.DBConnectionResolver
	// dbName is the name of the database connection holding the history tables.
	dbName string
}

// NewSQLJobRepository creates a new instance of SQLJobRepository.
func NewSQLJobRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLJobRepository {
	return &SQLJobRepository{
		dbResolver: dbResolver,
		dbName:     dbName,
	}
}

// getDBConnection resolves the connection on every call so a reconnect by the provider is picked up.
func (r *SQLJobRepository) getDBConnection(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewBatchError("SQLJobRepository", fmt.Sprintf("Failed to resolve DB connection '%s'", r.dbName), err, false, false)
	}
	return conn, nil
}

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.SaveJobExecution"
	entity := fromDomainJobExecution(jobExecution)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	if _, err = conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		if conn.IsTableNotExistError(err) {
			// History is best effort until the schema has been migrated.
			logger.Warnf("%s: history table missing, JobExecution (ID: %s) is not recorded.", op, jobExecution.ID)
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobRepository.UpdateJobExecution"

	jobExecution.LastUpdated = time.Now()
	entity := fromDomainJobExecution(jobExecution)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	rowsAffected, err := conn.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(), nil)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update JobExecution (ID: %s)", jobExecution.ID), err, true, false)
	}
	if rowsAffected == 0 {
		// Saved before the history tables existed (the first migrate run); record it now.
		if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
			return exception.NewBatchError(op, fmt.Sprintf("JobExecution (ID: %s) not found for update", jobExecution.ID), err, false, false)
		}
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error) {
	const op = "SQLJobRepository.FindJobExecutionByID"
	var entity JobExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	if err = conn.ExecuteQueryAdvanced(ctx, &entity, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find JobExecution by ID: %s", executionID), err, true, false)
	}
	if entity.ID == "" {
		return nil, repository.ErrJobExecutionNotFound
	}

	domainExecution := toDomainJobExecution(&entity)
	if err := r.attachSteps(ctx, conn, domainExecution); err != nil {
		logger.Errorf("%s: Failed to load StepExecutions for JobExecution (ID: %s): %v", op, executionID, err)
	}
	return domainExecution, nil
}

// FindRecentJobExecutions returns up to limit executions of jobName, newest first.
func (r *SQLJobRepository) FindRecentJobExecutions(ctx context.Context, jobName string, limit int) ([]*model.JobExecution, error) {
	const op = "SQLJobRepository.FindRecentJobExecutions"
	var entities []JobExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	if err = conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_name": jobName}, "start_time desc", limit); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.JobExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to list JobExecutions of '%s'", jobName), err, true, false)
	}

	executions := make([]*model.JobExecution, len(entities))
	for i := range entities {
		executions[i] = toDomainJobExecution(&entities[i])
		if err := r.attachSteps(ctx, conn, executions[i]); err != nil {
			return nil, err
		}
	}
	return executions, nil
}

func (r *SQLJobRepository) attachSteps(ctx context.Context, conn database.DBConnection, je *model.JobExecution) error {
	steps, err := r.findStepExecutionsByJobExecutionID(ctx, conn, je.ID)
	if err != nil {
		return err
	}
	for _, se := range steps {
		se.JobExecution = je
	}
	je.StepExecutions = steps
	return nil
}

func (r *SQLJobRepository) findStepExecutionsByJobExecutionID(ctx context.Context, conn database.DBConnection, jobExecutionID string) ([]*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionsByJobExecutionID"
	var entities []StepExecutionEntity

	if err := conn.ExecuteQueryAdvanced(ctx, &entities, map[string]interface{}{"job_execution_id": jobExecutionID}, "start_time asc", 0); err != nil {
		if conn.IsTableNotExistError(err) {
			return []*model.StepExecution{}, nil
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecutions by JobExecution ID: %s", jobExecutionID), err, true, false)
	}

	domainExecutions := make([]*model.StepExecution, len(entities))
	for i := range entities {
		domainExecutions[i] = toDomainStepExecution(&entities[i])
	}
	return domainExecutions, nil
}

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.SaveStepExecution"
	entity := fromDomainStepExecution(stepExecution)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	if _, err = conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to save StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLJobRepository.UpdateStepExecution"

	stepExecution.LastUpdated = time.Now()
	entity := fromDomainStepExecution(stepExecution)

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return err
	}

	rowsAffected, err := conn.ExecuteUpdate(ctx, entity, "UPDATE", entity.TableName(), nil)
	if err != nil {
		if conn.IsTableNotExistError(err) {
			return nil
		}
		return exception.NewBatchError(op, fmt.Sprintf("failed to update StepExecution (ID: %s)", stepExecution.ID), err, true, false)
	}
	if rowsAffected == 0 {
		if _, err := conn.ExecuteUpdate(ctx, entity, "CREATE", entity.TableName(), nil); err != nil {
			return exception.NewBatchError(op, fmt.Sprintf("StepExecution (ID: %s) not found for update", stepExecution.ID), err, false, false)
		}
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error) {
	const op = "SQLJobRepository.FindStepExecutionByID"
	var entity StepExecutionEntity

	conn, err := r.getDBConnection(ctx)
	if err != nil {
		return nil, err
	}

	if err = conn.ExecuteQueryAdvanced(ctx, &entity, map[string]interface{}{"id": executionID}, "", 1); err != nil {
		if conn.IsTableNotExistError(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, exception.NewBatchError(op, fmt.Sprintf("failed to find StepExecution by ID: %s", executionID), err, true, false)
	}
	if entity.ID == "" {
		return nil, repository.ErrStepExecutionNotFound
	}
	return toDomainStepExecution(&entity), nil
}

// Close implements repository.JobRepository.
// The connection belongs to its DBProvider and is not closed here.
func (r *SQLJobRepository) Close() error {
	return nil
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// JobRepositoryParams defines the dependencies required by NewJobRepository.
type JobRepositoryParams struct {
	fx.In
	DBResolver database.DBConnectionResolver
	Cfg        *config.Config
}

// NewJobRepository records history in the warehouse connection.
func NewJobRepository(p JobRepositoryParams) repository.JobRepository {
	dbName := p.Cfg.Citibike.Warehouse.DBRef
	if dbName == "" {
		dbName = "warehouse"
	}
	return NewSQLJobRepository(p.DBResolver, dbName)
}

// Module provides the SQL JobRepository.
var Module = fx.Options(fx.Provide(NewJobRepository))
