package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentinel/mpc-engine/internal/circuit"
	"github.com/sentinel/mpc-engine/internal/model"
)

//go:embed schema.sql
var schema string

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Correlation ids are stored as NUMERIC(20,0) to hold the full uint64 range.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *model.Job) error {
	args, err := json.Marshal(j.Args)
	if err != nil {
		return fmt.Errorf("encode args: %w", err)
	}
	refs, err := json.Marshal(j.Refs)
	if err != nil {
		return fmt.Errorf("encode refs: %w", err)
	}
	inputs, err := json.Marshal(j.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	if j.Inputs == nil {
		inputs = []byte("[]")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO computation_jobs (job_id, circuit, correlation_id, args, refs, inputs, state, reason, created_at, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (circuit, correlation_id) DO NOTHING`,
		j.ID, string(j.Key.Circuit), strconv.FormatUint(j.Key.CorrelationID, 10),
		string(args), string(refs), string(inputs),
		string(j.State), j.Reason, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", j.Key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", model.ErrDuplicateComputation, j.Key)
	}
	return nil
}

const jobColumns = `job_id::TEXT, circuit, correlation_id::TEXT, args, refs, inputs,
		        state, reason, created_at, updated_at, completed_at`

func (s *PostgresStore) GetJob(ctx context.Context, key model.JobKey) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM computation_jobs WHERE circuit = $1 AND correlation_id = $2::NUMERIC`,
		string(key.Circuit), strconv.FormatUint(key.CorrelationID, 10))
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrJobNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", key, err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, state model.JobState) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM computation_jobs WHERE $1 = '' OR state = $1 ORDER BY created_at`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *PostgresStore) MarkExecuting(ctx context.Context, key model.JobKey) error {
	corr := strconv.FormatUint(key.CorrelationID, 10)
	tag, err := s.pool.Exec(ctx,
		`UPDATE computation_jobs SET state = $3, updated_at = $4
		 WHERE circuit = $1 AND correlation_id = $2::NUMERIC AND state = $5`,
		string(key.Circuit), corr, string(model.JobExecuting), now(), string(model.JobQueued))
	if err != nil {
		return fmt.Errorf("mark executing %s: %w", key, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var state string
	err = s.pool.QueryRow(ctx,
		`SELECT state FROM computation_jobs WHERE circuit = $1 AND correlation_id = $2::NUMERIC`,
		string(key.Circuit), corr).Scan(&state)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("%w: %s", model.ErrJobNotFound, key)
	case err != nil:
		return fmt.Errorf("mark executing %s: %w", key, err)
	case model.JobState(state).Terminal():
		return fmt.Errorf("%w: job %s is already %s", model.ErrDuplicateCallback, key, state)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, key model.JobKey, fin model.Finish) (*model.Record, error) {
	corr := strconv.FormatUint(key.CorrelationID, 10)
	var rec *model.Record

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var job model.Job
		var state string
		err := tx.QueryRow(ctx,
			`SELECT job_id::TEXT, state FROM computation_jobs
			 WHERE circuit = $1 AND correlation_id = $2::NUMERIC FOR UPDATE`,
			string(key.Circuit), corr).Scan(&job.ID, &state)
		found := true
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
		} else if err != nil {
			return err
		}
		job.State = model.JobState(state)
		if err := checkFinish(&job, found, key, fin); err != nil {
			return err
		}

		if w := fin.Write; w != nil {
			var version int64
			err := tx.QueryRow(ctx,
				`INSERT INTO confidential_records (kind, id, ciphertext, version, updated_at)
				 VALUES ($1, $2, $3, 1, $4)
				 ON CONFLICT (kind, id) DO UPDATE
				 SET ciphertext = EXCLUDED.ciphertext,
				     version = confidential_records.version + 1,
				     updated_at = EXCLUDED.updated_at
				 RETURNING version`,
				string(w.Ref.Kind), w.Ref.ID[:], w.Ciphertext, fin.At).Scan(&version)
			if err != nil {
				return fmt.Errorf("write record %s: %w", w.Ref, err)
			}
			rec = &model.Record{
				Kind:       w.Ref.Kind,
				ID:         w.Ref.ID,
				Ciphertext: w.Ciphertext,
				Version:    uint64(version),
				UpdatedAt:  fin.At,
			}
		}

		_, err = tx.Exec(ctx,
			`UPDATE computation_jobs SET state = $3, reason = $4, updated_at = $5, completed_at = $5
			 WHERE circuit = $1 AND correlation_id = $2::NUMERIC`,
			string(key.Circuit), corr, string(fin.State), fin.Reason, fin.At)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, ref model.RecordRef) (*model.Record, error) {
	r := model.Record{Kind: ref.Kind, ID: ref.ID}
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT ciphertext, version, updated_at FROM confidential_records WHERE kind = $1 AND id = $2`,
		string(ref.Kind), ref.ID[:]).
		Scan(&r.Ciphertext, &version, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", model.ErrRecordNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", ref, err)
	}
	r.Version = uint64(version)
	return &r, nil
}

// scanJob reads one computation_jobs row selected with jobColumns.
func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j                          model.Job
		circuitID, corr, state     string
		rawArgs, rawRefs, rawInput []byte
		completedAt                *time.Time
	)
	if err := row.Scan(&j.ID, &circuitID, &corr, &rawArgs, &rawRefs, &rawInput,
		&state, &j.Reason, &j.CreatedAt, &j.UpdatedAt, &completedAt); err != nil {
		return nil, err
	}

	id, err := strconv.ParseUint(corr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("job correlation id %q: %w", corr, err)
	}
	j.Key = model.JobKey{Circuit: model.CircuitID(circuitID), CorrelationID: id}
	j.State = model.JobState(state)
	j.CompletedAt = completedAt

	if j.Args, err = circuit.DecodeArgs(j.Key.Circuit, rawArgs); err != nil {
		return nil, fmt.Errorf("job %s: %w", j.Key, err)
	}
	if err := json.Unmarshal(rawRefs, &j.Refs); err != nil {
		return nil, fmt.Errorf("job %s refs: %w", j.Key, err)
	}
	if err := json.Unmarshal(rawInput, &j.Inputs); err != nil {
		return nil, fmt.Errorf("job %s inputs: %w", j.Key, err)
	}
	return &j, nil
}
