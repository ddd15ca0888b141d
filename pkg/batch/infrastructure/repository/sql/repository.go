// Package sql persists batch metadata through gorm. The schema is owned by the embedded
// migrations in this package; see Migrate.
package sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	gormadaptor "github.com/tigerroll/chunkflow/pkg/batch/adaptor/database/gorm"
	"github.com/tigerroll/chunkflow/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkflow/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/exception"
	"github.com/tigerroll/chunkflow/pkg/batch/support/util/logger"
)

const moduleName = "SQLJobRepository"

// SQLJobRepository implements repository.JobRepository.
type SQLJobRepository struct {
	db *gorm.DB
}

var _ repository.JobRepository = (*SQLJobRepository)(nil)

// NewSQLJobRepository creates a repository on db. The connection is owned by the caller.
func NewSQLJobRepository(db *gorm.DB) *SQLJobRepository {
	return &SQLJobRepository{db: db}
}

// Close implements repository.JobRepository. The connection is closed by its provider.
func (r *SQLJobRepository) Close() error { return nil }

func (r *SQLJobRepository) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

func dbError(op, msg string, err error) error {
	return exception.NewBatchError(moduleName, fmt.Sprintf("%s: %s", op, msg), err, false, true)
}

// --- JobInstance ---

func (r *SQLJobRepository) SaveJobInstance(ctx context.Context, instance *model.JobInstance) error {
	if err := r.conn(ctx).Create(fromDomainJobInstance(instance)).Error; err != nil {
		if gormadaptor.IsDuplicateKeyError(err) {
			return repository.ErrJobInstanceAlreadyExists
		}
		return dbError("SaveJobInstance", fmt.Sprintf("failed to save JobInstance (ID: %s)", instance.ID), err)
	}
	return nil
}

func (r *SQLJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	var e JobInstanceEntity
	err := r.conn(ctx).Where("id = ?", id).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || gormadaptor.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, dbError("FindJobInstanceByID", "failed to find JobInstance "+id, err)
	}
	return toDomainJobInstance(&e), nil
}

func (r *SQLJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	hash, err := params.Hash()
	if err != nil {
		return nil, dbError("FindJobInstanceByJobNameAndParameters", "failed to hash JobParameters", err)
	}
	var entities []JobInstanceEntity
	err = r.conn(ctx).Where("job_name = ? AND parameters_hash = ?", jobName, hash).Find(&entities).Error
	if err != nil {
		if gormadaptor.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, dbError("FindJobInstanceByJobNameAndParameters", "failed to find JobInstance", err)
	}
	for i := range entities {
		ji := toDomainJobInstance(&entities[i])
		if ji.Parameters.Equal(params) {
			return ji, nil
		}
		logger.Warnf("JobInstance %s matched the parameter hash of '%s' but not its parameters.", ji.ID, jobName)
	}
	return nil, repository.ErrJobInstanceNotFound
}

func (r *SQLJobRepository) FindLatestJobInstance(ctx context.Context, jobName string) (*model.JobInstance, error) {
	var entities []JobInstanceEntity
	err := r.conn(ctx).Where("job_name = ?", jobName).Order("create_time DESC").Limit(1).Find(&entities).Error
	if err != nil {
		if gormadaptor.IsTableNotExistError(err) {
			return nil, repository.ErrJobInstanceNotFound
		}
		return nil, dbError("FindLatestJobInstance", "failed to find JobInstance", err)
	}
	if len(entities) == 0 {
		return nil, repository.ErrJobInstanceNotFound
	}
	return toDomainJobInstance(&entities[0]), nil
}

func (r *SQLJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	var n int64
	if err := r.conn(ctx).Model(&JobInstanceEntity{}).Where("job_name = ?", jobName).Count(&n).Error; err != nil {
		return 0, dbError("GetJobInstanceCount", "failed to count JobInstances", err)
	}
	return int(n), nil
}

func (r *SQLJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.conn(ctx).Model(&JobInstanceEntity{}).Distinct("job_name").Order("job_name").Pluck("job_name", &names).Error
	if err != nil {
		return nil, dbError("GetJobNames", "failed to list job names", err)
	}
	return names, nil
}

// --- JobExecution ---

func (r *SQLJobRepository) SaveJobExecution(ctx context.Context, je *model.JobExecution) error {
	je.Version = 0
	if err := r.conn(ctx).Create(fromDomainJobExecution(je)).Error; err != nil {
		return dbError("SaveJobExecution", fmt.Sprintf("failed to save JobExecution (ID: %s)", je.ID), err)
	}
	return nil
}

func (r *SQLJobRepository) UpdateJobExecution(ctx context.Context, je *model.JobExecution) error {
	current := je.Version
	je.Version++
	je.LastUpdated = time.Now()
	entity := fromDomainJobExecution(je)

	res := r.conn(ctx).Model(&JobExecutionEntity{}).
		Where("id = ? AND version = ?", je.ID, current).
		Select("*").Omit("id", "create_time").
		Updates(entity)
	if res.Error != nil {
		je.Version = current
		return dbError("UpdateJobExecution", fmt.Sprintf("failed to update JobExecution (ID: %s)", je.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		je.Version = current
		return exception.NewOptimisticLockingFailureException(moduleName,
			fmt.Sprintf("JobExecution (ID: %s) with version %d not found for update", je.ID, current), nil)
	}
	return nil
}

func (r *SQLJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	var e JobExecutionEntity
	if err := r.conn(ctx).Where("id = ?", id).Take(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || gormadaptor.IsTableNotExistError(err) {
			return nil, repository.ErrJobExecutionNotFound
		}
		return nil, dbError("FindJobExecutionByID", "failed to find JobExecution "+id, err)
	}
	return r.hydrate(ctx, &e)
}

func (r *SQLJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, instance *model.JobInstance) ([]*model.JobExecution, error) {
	var entities []JobExecutionEntity
	err := r.conn(ctx).Where("job_instance_id = ?", instance.ID).Order("create_time DESC").Find(&entities).Error
	if err != nil {
		return nil, dbError("FindJobExecutionsByJobInstance", "failed to list JobExecutions", err)
	}
	return r.hydrateAll(ctx, entities)
}

func (r *SQLJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	running := []string{
		model.BatchStatusStarting.String(),
		model.BatchStatusStarted.String(),
		model.BatchStatusStopping.String(),
	}
	var entities []JobExecutionEntity
	err := r.conn(ctx).Where("job_name = ? AND status IN ?", jobName, running).Order("create_time DESC").Find(&entities).Error
	if err != nil {
		return nil, dbError("FindRunningJobExecutions", "failed to list running JobExecutions", err)
	}
	return r.hydrateAll(ctx, entities)
}

func (r *SQLJobRepository) hydrateAll(ctx context.Context, entities []JobExecutionEntity) ([]*model.JobExecution, error) {
	out := make([]*model.JobExecution, 0, len(entities))
	for i := range entities {
		je, err := r.hydrate(ctx, &entities[i])
		if err != nil {
			return nil, err
		}
		out = append(out, je)
	}
	return out, nil
}

func (r *SQLJobRepository) hydrate(ctx context.Context, e *JobExecutionEntity) (*model.JobExecution, error) {
	je := toDomainJobExecution(e)
	steps, err := r.FindStepExecutionsByJobExecutionID(ctx, je.ID)
	if err != nil {
		return nil, err
	}
	je.SetStepExecutions(steps)
	return je, nil
}

// --- StepExecution ---

func (r *SQLJobRepository) SaveStepExecution(ctx context.Context, se *model.StepExecution) error {
	se.Version = 0
	entity := fromDomainStepExecution(se)
	entity.CreateTime = time.Now()
	if err := r.conn(ctx).Create(entity).Error; err != nil {
		return dbError("SaveStepExecution", fmt.Sprintf("failed to save StepExecution (ID: %s)", se.ID), err)
	}
	return nil
}

func (r *SQLJobRepository) UpdateStepExecution(ctx context.Context, se *model.StepExecution) error {
	current := se.Version
	se.Version++
	se.LastUpdated = time.Now()
	entity := fromDomainStepExecution(se)

	res := r.conn(ctx).Model(&StepExecutionEntity{}).
		Where("id = ? AND version = ?", se.ID, current).
		Select("*").Omit("id", "create_time").
		Updates(entity)
	if res.Error != nil {
		se.Version = current
		return dbError("UpdateStepExecution", fmt.Sprintf("failed to update StepExecution (ID: %s)", se.ID), res.Error)
	}
	if res.RowsAffected == 0 {
		se.Version = current
		return exception.NewOptimisticLockingFailureException(moduleName,
			fmt.Sprintf("StepExecution (ID: %s) with version %d not found for update", se.ID, current), nil)
	}
	return nil
}

func (r *SQLJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	var e StepExecutionEntity
	if err := r.conn(ctx).Where("id = ?", id).Take(&e).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || gormadaptor.IsTableNotExistError(err) {
			return nil, repository.ErrStepExecutionNotFound
		}
		return nil, dbError("FindStepExecutionByID", "failed to find StepExecution "+id, err)
	}
	return toDomainStepExecution(&e), nil
}

func (r *SQLJobRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	var entities []StepExecutionEntity
	err := r.conn(ctx).Where("job_execution_id = ?", jobExecutionID).Order("create_time ASC").Find(&entities).Error
	if err != nil {
		return nil, dbError("FindStepExecutionsByJobExecutionID", "failed to list StepExecutions", err)
	}
	out := make([]*model.StepExecution, 0, len(entities))
	for i := range entities {
		out = append(out, toDomainStepExecution(&entities[i]))
	}
	return out, nil
}

// --- ExecutionContextStore ---

func (r *SQLJobRepository) Get(ctx context.Context, scope port.Scope, key string) (interface{}, bool, error) {
	var entities []ExecutionContextEntity
	err := r.conn(ctx).
		Where("scope_kind = ? AND execution_id = ? AND entry_key = ?", string(scope.Kind), scope.ExecutionID, key).
		Limit(1).Find(&entities).Error
	if err != nil {
		return nil, false, dbError("Get", "failed to read execution context entry "+key, err)
	}
	if len(entities) == 0 {
		return nil, false, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(entities[0].EntryValue), &v); err != nil {
		return nil, false, dbError("Get", "failed to decode execution context entry "+key, err)
	}
	return v, true, nil
}

func (r *SQLJobRepository) Put(ctx context.Context, scope port.Scope, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return dbError("Put", "failed to encode execution context entry "+key, err)
	}
	entity := &ExecutionContextEntity{
		ScopeKind:   string(scope.Kind),
		ExecutionID: scope.ExecutionID,
		EntryKey:    key,
		EntryValue:  string(data),
		LastUpdated: time.Now(),
	}
	err = r.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "scope_kind"}, {Name: "execution_id"}, {Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "last_updated"}),
	}).Create(entity).Error
	if err != nil {
		return dbError("Put", "failed to write execution context entry "+key, err)
	}
	return nil
}

func (r *SQLJobRepository) Snapshot(ctx context.Context, scope port.Scope) (model.ExecutionContext, error) {
	var entities []ExecutionContextEntity
	err := r.conn(ctx).
		Where("scope_kind = ? AND execution_id = ?", string(scope.Kind), scope.ExecutionID).
		Find(&entities).Error
	if err != nil {
		return nil, dbError("Snapshot", "failed to read execution context", err)
	}
	ec := model.NewExecutionContext()
	for _, e := range entities {
		var v interface{}
		if err := json.Unmarshal([]byte(e.EntryValue), &v); err != nil {
			return nil, dbError("Snapshot", "failed to decode execution context entry "+e.EntryKey, err)
		}
		ec.Put(e.EntryKey, v)
	}
	return ec, nil
}
