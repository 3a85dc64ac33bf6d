package repository

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iago/assessment-dispatch/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate creates the tables this service reads and writes.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) ProjectQuestions(ctx context.Context, submissionID int64) (domain.ProjectQuestions, error) {
	var (
		projectID   int64
		project     domain.ProjectQuestions
		staticRaw   []byte
		randomCount int
	)
	err := s.pool.QueryRow(ctx, `
		SELECT p.project_id, p.unit_code, p.project_name, p.static_questions, p.random_question_count
		FROM submissions s
		JOIN projects p ON p.project_id = s.project_id
		WHERE s.submission_id = $1
	`, submissionID).Scan(&projectID, &project.UnitCode, &project.ProjectTitle, &staticRaw, &randomCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProjectQuestions{}, ErrNotFound
	}
	if err != nil {
		return domain.ProjectQuestions{}, fmt.Errorf("select project for submission %d: %w", submissionID, err)
	}

	if err := json.Unmarshal(staticRaw, &project.StaticQuestions); err != nil {
		return domain.ProjectQuestions{}, fmt.Errorf("decode static questions: %w", err)
	}

	project.RandomQuestions = []domain.RandomQuestion{}
	if randomCount <= 0 {
		return project, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT question FROM question_bank
		WHERE project_id = $1
		ORDER BY random()
		LIMIT $2
	`, projectID, randomCount)
	if err != nil {
		return domain.ProjectQuestions{}, fmt.Errorf("select random questions: %w", err)
	}
	questions, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return domain.ProjectQuestions{}, fmt.Errorf("scan random questions: %w", err)
	}
	for _, question := range questions {
		project.RandomQuestions = append(project.RandomQuestions, domain.RandomQuestion{Question: question})
	}
	return project, nil
}

func (s *PostgresStore) RecordGeneratedVivaArtifact(ctx context.Context, submissionID int64, name, path, status string) error {
	command, err := s.pool.Exec(ctx, `
		UPDATE submissions
		SET qgen_status = $2,
			generated_questions_name = $3,
			generated_questions_path = $4,
			updated_at = $5
		WHERE submission_id = $1
	`, submissionID, status, name, path, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update submission %d: %w", submissionID, err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) RecordGeneratedRubric(ctx context.Context, record RubricRecord) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO generated_rubrics (staff_email, rubric_title, file_name, file_path, status, marking_guide_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING rubric_id
	`, record.StaffEmail, record.Title, record.Name, record.Path, record.Status, record.MarkingGuideID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rubric: %w", err)
	}
	return id, nil
}
