package postgres

import (
	"context"
	"errors"
	"fmt"

	"quiz-host/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInvalidText         = "22P02"
)

// Catalog stores admins, rooms and problems in Postgres.
type Catalog struct {
	pool *pgxpool.Pool
}

func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

func (c *Catalog) CreateAdmin(ctx context.Context, username string) (domain.Admin, error) {
	admin := domain.Admin{ID: uuid.NewString(), Username: username}
	_, err := c.pool.Exec(ctx, `INSERT INTO admins (id, username) VALUES ($1, $2)`, admin.ID, admin.Username)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.Admin{}, domain.ErrAdminExists
		}
		return domain.Admin{}, fmt.Errorf("insert admin: %w", err)
	}
	return admin, nil
}

func (c *Catalog) FindRoom(ctx context.Context, name, adminID string) (domain.RoomRecord, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, name, admin_id::text, quiz_id::text, created_at
		FROM rooms WHERE name = $1 AND admin_id::text = $2`, name, adminID)
	return scanRoom(row)
}

func (c *Catalog) GetRoom(ctx context.Context, roomID string) (domain.RoomRecord, error) {
	row := c.pool.QueryRow(ctx, `
		SELECT id, name, admin_id::text, quiz_id::text, created_at
		FROM rooms WHERE id = $1`, roomID)
	return scanRoom(row)
}

// CreateRoom writes the room and its empty quiz in one transaction.
func (c *Catalog) CreateRoom(ctx context.Context, room domain.RoomRecord) error {
	err := c.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO quizzes (id, created_at) VALUES ($1, $2)`, room.QuizID, room.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, admin_id, quiz_id, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			room.ID, room.Name, room.AdminID, room.QuizID, room.CreatedAt)
		return err
	})
	switch pgCode(err) {
	case "":
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		return nil
	case codeUniqueViolation:
		return domain.ErrRoomExists
	case codeForeignKeyViolation, codeInvalidText:
		return domain.ErrAdminNotFound
	default:
		return fmt.Errorf("create room: %w", err)
	}
}

// AddProblem appends a problem at the end of the quiz. The quiz row is locked so
// concurrent appends get distinct positions.
func (c *Catalog) AddProblem(ctx context.Context, quizID string, problem domain.Problem) (domain.Problem, error) {
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	problem.Options = append([]string(nil), problem.Options...)

	err := c.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id::text FROM quizzes WHERE id::text = $1 FOR UPDATE`, quizID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrRoomNotFound
		}
		if err != nil {
			return err
		}

		var position int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM problems WHERE quiz_id = $1`, quizID).Scan(&position); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO problems (id, quiz_id, position, title, answer, countdown)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			problem.ID, quizID, position, problem.Title, problem.Answer, problem.Countdown); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, opt := range problem.Options {
			batch.Queue(`INSERT INTO options (problem_id, position, value) VALUES ($1, $2, $3)`, problem.ID, i, opt)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return domain.Problem{}, err
		}
		return domain.Problem{}, fmt.Errorf("add problem: %w", err)
	}
	return problem, nil
}

// LoadProblems returns the quiz's problems in insertion order with their options.
func (c *Catalog) LoadProblems(ctx context.Context, quizID string) ([]domain.Problem, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT p.id::text, p.title, p.answer, p.countdown,
		       COALESCE(array_agg(o.value ORDER BY o.position) FILTER (WHERE o.problem_id IS NOT NULL), '{}')
		FROM problems p
		LEFT JOIN options o ON o.problem_id = p.id
		WHERE p.quiz_id::text = $1
		GROUP BY p.id, p.position
		ORDER BY p.position`, quizID)
	if err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	defer rows.Close()

	var problems []domain.Problem
	for rows.Next() {
		var p domain.Problem
		if err := rows.Scan(&p.ID, &p.Title, &p.Answer, &p.Countdown, &p.Options); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	return problems, nil
}

func scanRoom(row pgx.Row) (domain.RoomRecord, error) {
	var rec domain.RoomRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.AdminID, &rec.QuizID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RoomRecord{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.RoomRecord{}, fmt.Errorf("scan room: %w", err)
	}
	return rec, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
