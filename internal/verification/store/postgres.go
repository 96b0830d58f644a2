package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vetgate/internal/verification/models"
	"vetgate/pkg/platform/sentinel"
)

// Postgres stores keep the full record as a JSONB document alongside the
// scalar columns the queue filters and sorts on. The document is the source
// of truth; scalars are denormalized on every write.

const pgUniqueViolation = "23505"

const processSchema = `
CREATE TABLE IF NOT EXISTS verification_processes (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	priority         TEXT NOT NULL,
	user_type        TEXT NOT NULL,
	risk_level       TEXT NOT NULL DEFAULT '',
	risk_score       INT  NOT NULL DEFAULT 0,
	full_name        TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL DEFAULT '',
	specialization   TEXT NOT NULL DEFAULT '',
	assigned_reviewer TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ,
	doc              JSONB NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS verification_one_active_per_user
	ON verification_processes (user_id)
	WHERE status IN ('pending', 'under_review', 'requires_more_info', 'resubmitted');

CREATE INDEX IF NOT EXISTS verification_processes_status_idx
	ON verification_processes (status, priority, created_at);

CREATE TABLE IF NOT EXISTS system_messages (
	id         TEXT PRIMARY KEY,
	process_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS system_messages_process_idx
	ON system_messages (process_id, created_at);

CREATE TABLE IF NOT EXISTS user_messages (
	id         TEXT PRIMARY KEY,
	process_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	doc        JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS user_messages_process_idx
	ON user_messages (process_id, created_at);

CREATE TABLE IF NOT EXISTS rejection_reasons (
	id        TEXT PRIMARY KEY,
	is_active BOOLEAN NOT NULL,
	doc       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS message_templates (
	id        TEXT PRIMARY KEY,
	type      TEXT NOT NULL,
	is_active BOOLEAN NOT NULL,
	doc       JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS account_verification_status (
	user_id    TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables and seeds the reference catalog where a
// row with the same id is not already present.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, processSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	for _, r := range DefaultReasons() {
		doc, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal reason %s: %w", r.ID, err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO rejection_reasons (id, is_active, doc)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.IsActive, doc)
		if err != nil {
			return fmt.Errorf("seed reason %s: %w", r.ID, err)
		}
	}
	for _, t := range DefaultTemplates() {
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal template %s: %w", t.ID, err)
		}
		_, err = pool.Exec(ctx, `
			INSERT INTO message_templates (id, type, is_active, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING
		`, t.ID, string(t.Type), t.IsActive, doc)
		if err != nil {
			return fmt.Errorf("seed template %s: %w", t.ID, err)
		}
	}
	return nil
}

// PostgresProcessStore is the durable ProcessStore.
type PostgresProcessStore struct {
	pool *pgxpool.Pool
}

func NewPostgresProcessStore(pool *pgxpool.Pool) *PostgresProcessStore {
	return &PostgresProcessStore{pool: pool}
}

func (s *PostgresProcessStore) CreateIfNoActive(ctx context.Context, p *models.VerificationProcess) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal process: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO verification_processes (
			id, user_id, status, priority, user_type,
			risk_level, risk_score, full_name, email, specialization,
			assigned_reviewer, created_at, updated_at, completed_at, doc
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, p.ID, p.UserID, string(p.Status), string(p.Priority), string(p.UserType),
		string(p.RiskAssessment.Level), p.RiskAssessment.Score,
		p.Request.FullName, p.Request.Email, p.Request.Specialization,
		p.AssignedReviewer, p.CreatedAt, p.UpdatedAt, p.CompletedAt, doc)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

func (s *PostgresProcessStore) Get(ctx context.Context, id string) (*models.VerificationProcess, error) {
	return scanProcess(s.pool.QueryRow(ctx,
		`SELECT doc FROM verification_processes WHERE id = $1`, id))
}

func (s *PostgresProcessStore) Execute(ctx context.Context, id string, expectedUpdatedAt time.Time,
	validate func(*models.VerificationProcess) error,
	mutate func(*models.VerificationProcess)) (*models.VerificationProcess, error) {

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanProcess(tx.QueryRow(ctx,
		`SELECT doc FROM verification_processes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if !p.UpdatedAt.Equal(expectedUpdatedAt) {
		return nil, sentinel.ErrVersionMismatch
	}
	if err := validate(p); err != nil {
		return nil, err
	}
	mutate(p)

	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal process: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE verification_processes SET
			status = $2, priority = $3,
			risk_level = $4, risk_score = $5,
			full_name = $6, email = $7, specialization = $8,
			assigned_reviewer = $9, updated_at = $10, completed_at = $11,
			doc = $12
		WHERE id = $1
	`, p.ID, string(p.Status), string(p.Priority),
		string(p.RiskAssessment.Level), p.RiskAssessment.Score,
		p.Request.FullName, p.Request.Email, p.Request.Specialization,
		p.AssignedReviewer, p.UpdatedAt, p.CompletedAt, doc)
	if err != nil {
		return nil, fmt.Errorf("update process: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

func (s *PostgresProcessStore) FindActiveByUser(ctx context.Context, userID string) (*models.VerificationProcess, error) {
	return scanProcess(s.pool.QueryRow(ctx, `
		SELECT doc FROM verification_processes
		WHERE user_id = $1
		  AND status IN ('pending', 'under_review', 'requires_more_info', 'resubmitted')
	`, userID))
}

func (s *PostgresProcessStore) LatestClosedByUser(ctx context.Context, userID string) (*models.VerificationProcess, error) {
	return scanProcess(s.pool.QueryRow(ctx, `
		SELECT doc FROM verification_processes
		WHERE user_id = $1 AND status IN ('approved', 'rejected')
		ORDER BY completed_at DESC NULLS LAST
		LIMIT 1
	`, userID))
}

func (s *PostgresProcessStore) CountRejectedByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_processes
		WHERE user_id = $1 AND status = 'rejected'
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rejected: %w", err)
	}
	return n, nil
}

var sortColumns = map[SortField]string{
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
	SortStatus:    "status",
	SortPriority: `CASE priority
		WHEN 'low' THEN 0 WHEN 'medium' THEN 1
		WHEN 'high' THEN 2 WHEN 'urgent' THEN 3 END`,
	SortRiskScore: "risk_score",
	SortFullName:  "LOWER(full_name)",
}

func (s *PostgresProcessStore) Query(ctx context.Context, q ProcessQuery) ([]*models.VerificationProcess, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(q.Statuses) > 0 {
		where = append(where, "status = ANY("+arg(stringsOf(q.Statuses))+")")
	}
	if len(q.Priorities) > 0 {
		where = append(where, "priority = ANY("+arg(stringsOf(q.Priorities))+")")
	}
	if len(q.UserTypes) > 0 {
		where = append(where, "user_type = ANY("+arg(stringsOf(q.UserTypes))+")")
	}
	if len(q.RiskLevels) > 0 {
		where = append(where, "risk_level = ANY("+arg(stringsOf(q.RiskLevels))+")")
	}
	if q.CreatedFrom != nil {
		where = append(where, "created_at >= "+arg(*q.CreatedFrom))
	}
	if q.CreatedTo != nil {
		where = append(where, "created_at <= "+arg(*q.CreatedTo))
	}
	if q.AssignedReviewer != "" {
		where = append(where, "assigned_reviewer = "+arg(q.AssignedReviewer))
	}
	if q.Search != "" {
		pattern := arg("%" + q.Search + "%")
		where = append(where, fmt.Sprintf(
			"(full_name ILIKE %s OR email ILIKE %s OR specialization ILIKE %s)",
			pattern, pattern, pattern))
	}

	query := "SELECT doc, COUNT(*) OVER() FROM verification_processes"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	col, ok := sortColumns[q.SortBy]
	if !ok {
		col = sortColumns[SortCreatedAt]
	}
	dir := "DESC"
	if q.SortAsc {
		dir = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s, id ASC", col, dir)

	offset := (q.Page - 1) * q.PageSize
	if offset < 0 {
		offset = 0
	}
	query += " LIMIT " + arg(q.PageSize) + " OFFSET " + arg(offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query processes: %w", err)
	}
	defer rows.Close()

	out := []*models.VerificationProcess{}
	total := 0
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc, &total); err != nil {
			return nil, 0, fmt.Errorf("scan process: %w", err)
		}
		var p models.VerificationProcess
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, 0, fmt.Errorf("unmarshal process: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query processes: %w", err)
	}
	if total == 0 && len(out) == 0 {
		// the window function yields no rows on an empty page; fetch the
		// filtered total separately so pagination metadata stays correct
		countQuery := "SELECT COUNT(*) FROM verification_processes"
		if len(where) > 0 {
			countQuery += " WHERE " + strings.Join(where, " AND ")
		}
		if err := s.pool.QueryRow(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count processes: %w", err)
		}
	}
	return out, total, nil
}

func (s *PostgresProcessStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByStatus:   make(map[models.Status]int),
		ByPriority: make(map[models.Priority]int),
		ByRisk:     make(map[models.RiskLevel]int),
	}
	rows, err := s.pool.Query(ctx, `
		SELECT status, priority, risk_level, COUNT(*)
		FROM verification_processes
		GROUP BY status, priority, risk_level
	`)
	if err != nil {
		return stats, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, priority, risk string
		var n int
		if err := rows.Scan(&status, &priority, &risk, &n); err != nil {
			return stats, fmt.Errorf("scan stats: %w", err)
		}
		stats.ByStatus[models.Status(status)] += n
		stats.ByPriority[models.Priority(priority)] += n
		if risk != "" {
			stats.ByRisk[models.RiskLevel(risk)] += n
		}
		stats.Total += n
	}
	return stats, rows.Err()
}

func scanProcess(row pgx.Row) (*models.VerificationProcess, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan process: %w", err)
	}
	var p models.VerificationProcess
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal process: %w", err)
	}
	return &p, nil
}

func stringsOf[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// PostgresMessageStore is the durable MessageStore.
type PostgresMessageStore struct {
	pool *pgxpool.Pool
}

func NewPostgresMessageStore(pool *pgxpool.Pool) *PostgresMessageStore {
	return &PostgresMessageStore{pool: pool}
}

func (s *PostgresMessageStore) SaveSystemMessage(ctx context.Context, msg *models.SystemMessage) error {
	doc, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO system_messages (id, process_id, status, created_at, doc)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, doc = EXCLUDED.doc
	`, msg.ID, msg.ProcessID, string(msg.Status), msg.CreatedAt, doc)
	if err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

func (s *PostgresMessageStore) GetSystemMessage(ctx context.Context, id string) (*models.SystemMessage, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM system_messages WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	var msg models.SystemMessage
	if err := json.Unmarshal(doc, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

func (s *PostgresMessageStore) UpdateDelivery(ctx context.Context, id string, status models.DeliveryStatus, attempts int, sentAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE system_messages SET
			status = $2,
			doc = doc || jsonb_build_object(
				'status', $2::text,
				'deliveryAttempts', $3::int,
				'sentAt', $4::timestamptz)
		WHERE id = $1
	`, id, string(status), attempts, sentAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresMessageStore) ListSystemMessages(ctx context.Context, processID string) ([]*models.SystemMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM system_messages
		WHERE process_id = $1 ORDER BY created_at ASC
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []*models.SystemMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		var msg models.SystemMessage
		if err := json.Unmarshal(doc, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

func (s *PostgresMessageStore) SaveUserMessage(ctx context.Context, msg *models.UserMessage) error {
	doc, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal user message: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_messages (id, process_id, created_at, doc)
		VALUES ($1, $2, $3, $4)
	`, msg.ID, msg.ProcessID, msg.CreatedAt, doc)
	if err != nil {
		return fmt.Errorf("save user message: %w", err)
	}
	return nil
}

func (s *PostgresMessageStore) ListUserMessages(ctx context.Context, processID string) ([]*models.UserMessage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc FROM user_messages
		WHERE process_id = $1 ORDER BY created_at ASC
	`, processID)
	if err != nil {
		return nil, fmt.Errorf("list user messages: %w", err)
	}
	defer rows.Close()
	var out []*models.UserMessage
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan user message: %w", err)
		}
		var msg models.UserMessage
		if err := json.Unmarshal(doc, &msg); err != nil {
			return nil, fmt.Errorf("unmarshal user message: %w", err)
		}
		out = append(out, &msg)
	}
	return out, rows.Err()
}

// PostgresReferenceStore implements ReasonStore and TemplateStore over the
// seeded catalog tables.
type PostgresReferenceStore struct {
	pool *pgxpool.Pool
}

func NewPostgresReferenceStore(pool *pgxpool.Pool) *PostgresReferenceStore {
	return &PostgresReferenceStore{pool: pool}
}

func (s *PostgresReferenceStore) ListReasons(ctx context.Context, activeOnly bool) ([]*models.RejectionReason, error) {
	query := `SELECT doc FROM rejection_reasons`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list reasons: %w", err)
	}
	defer rows.Close()
	var out []*models.RejectionReason
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan reason: %w", err)
		}
		var r models.RejectionReason
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("unmarshal reason: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresReferenceStore) FindReason(ctx context.Context, id string) (*models.RejectionReason, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM rejection_reasons WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find reason: %w", err)
	}
	var r models.RejectionReason
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("unmarshal reason: %w", err)
	}
	return &r, nil
}

func (s *PostgresReferenceStore) ListTemplates(ctx context.Context, activeOnly bool) ([]*models.MessageTemplate, error) {
	query := `SELECT doc FROM message_templates`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY id`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()
	var out []*models.MessageTemplate
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		var t models.MessageTemplate
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("unmarshal template: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *PostgresReferenceStore) FindTemplate(ctx context.Context, id string) (*models.MessageTemplate, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM message_templates WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	var t models.MessageTemplate
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &t, nil
}

func (s *PostgresReferenceStore) FindTemplateByType(ctx context.Context, msgType models.MessageType) (*models.MessageTemplate, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `
		SELECT doc FROM message_templates
		WHERE type = $1 AND is_active
		ORDER BY id LIMIT 1
	`, string(msgType)).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find template by type: %w", err)
	}
	var t models.MessageTemplate
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("unmarshal template: %w", err)
	}
	return &t, nil
}

// PostgresAccountStore mirrors the latest verification status per user for
// the account profile surface.
type PostgresAccountStore struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountStore(pool *pgxpool.Pool) *PostgresAccountStore {
	return &PostgresAccountStore{pool: pool}
}

func (s *PostgresAccountStore) SetVerificationStatus(ctx context.Context, userID string, status models.Status) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_verification_status (user_id, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = now()
	`, userID, string(status))
	if err != nil {
		return fmt.Errorf("set verification status: %w", err)
	}
	return nil
}
