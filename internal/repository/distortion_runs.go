package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sysu-ecnc-dev/text-distorter/backend/internal/domain"
)

const distortionRunColumns = `
	id,
	original_text,
	parameters,
	notify_email,
	status,
	result,
	error_message,
	created_at,
	finished_at,
	version
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDistortionRun(row rowScanner) (*domain.DistortionRun, error) {
	run := &domain.DistortionRun{}

	var (
		parameters []byte
		result     []byte
		finishedAt sql.NullTime
	)

	dst := []any{
		&run.ID,
		&run.OriginalText,
		&parameters,
		&run.NotifyEmail,
		&run.Status,
		&result,
		&run.ErrorMessage,
		&run.CreatedAt,
		&finishedAt,
		&run.Version,
	}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(parameters, &run.Parameters); err != nil {
		return nil, err
	}
	if result != nil {
		run.Result = &domain.DistortionResult{}
		if err := json.Unmarshal(result, run.Result); err != nil {
			return nil, err
		}
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	return run, nil
}

func (r *Repository) CreateDistortionRun(run *domain.DistortionRun) error {
	query := `
		INSERT INTO distortion_runs (original_text, parameters, notify_email)
		VALUES ($1, $2, $3)
		RETURNING id, status, created_at, version
	`

	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	dst := []any{&run.ID, &run.Status, &run.CreatedAt, &run.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, run.OriginalText, parameters, run.NotifyEmail).Scan(dst...); err != nil {
		return err
	}

	return nil
}

func (r *Repository) GetDistortionRunByID(id int64) (*domain.DistortionRun, error) {
	query := `SELECT ` + distortionRunColumns + ` FROM distortion_runs WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	return scanDistortionRun(r.dbpool.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetAllDistortionRuns() ([]*domain.DistortionRun, error) {
	query := `SELECT ` + distortionRunColumns + ` FROM distortion_runs ORDER BY created_at DESC`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*domain.DistortionRun{}
	for rows.Next() {
		run, err := scanDistortionRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// MarkDistortionRunRunning 只有 pending 状态的任务可以开始，重复投递的消息会得到 sql.ErrNoRows
func (r *Repository) MarkDistortionRunRunning(run *domain.DistortionRun) error {
	query := `
		UPDATE distortion_runs
		SET status = 'running', version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'pending'
		RETURNING status, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if err := r.dbpool.QueryRowContext(ctx, query, run.ID, run.Version).Scan(&run.Status, &run.Version); err != nil {
		return err
	}

	return nil
}

// ResetDistortionRun 把 running 状态的任务放回 pending，用于结果无法写入时让任务重新执行
func (r *Repository) ResetDistortionRun(run *domain.DistortionRun) error {
	query := `
		UPDATE distortion_runs
		SET status = 'pending', version = version + 1
		WHERE id = $1 AND version = $2 AND status = 'running'
		RETURNING status, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	if err := r.dbpool.QueryRowContext(ctx, query, run.ID, run.Version).Scan(&run.Status, &run.Version); err != nil {
		return err
	}

	return nil
}

func (r *Repository) CompleteDistortionRun(run *domain.DistortionRun, result *domain.DistortionResult) error {
	query := `
		UPDATE distortion_runs
		SET
			status = 'completed',
			result = $1,
			error_message = '',
			finished_at = NOW(),
			version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING status, finished_at, version
	`

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	var finishedAt time.Time
	if err := r.dbpool.QueryRowContext(ctx, query, data, run.ID, run.Version).Scan(&run.Status, &finishedAt, &run.Version); err != nil {
		return err
	}

	run.Result = result
	run.ErrorMessage = ""
	run.FinishedAt = &finishedAt
	return nil
}

func (r *Repository) FailDistortionRun(run *domain.DistortionRun, message string) error {
	query := `
		UPDATE distortion_runs
		SET
			status = 'failed',
			error_message = $1,
			finished_at = NOW(),
			version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING status, finished_at, version
	`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	var finishedAt time.Time
	if err := r.dbpool.QueryRowContext(ctx, query, message, run.ID, run.Version).Scan(&run.Status, &finishedAt, &run.Version); err != nil {
		return err
	}

	run.ErrorMessage = message
	run.FinishedAt = &finishedAt
	return nil
}

func (r *Repository) DeleteDistortionRun(id int64) error {
	query := `DELETE FROM distortion_runs WHERE id = $1`

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(r.cfg.Database.QueryTimeout)*time.Second)
	defer cancel()

	result, err := r.dbpool.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
