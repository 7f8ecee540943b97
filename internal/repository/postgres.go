package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pixora/backend/internal/domain"
)

const (
	accountColumns = `id, subject, display_name, handle, profile_pic_url, tokens, saved, followers, following, story, created_at`
	scanPageSize   = 500

	uniqueViolation = "23505"
)

// PostgresRepository implements domain.AccountRepository and
// domain.PostRepository using PostgreSQL
type PostgresRepository struct {
	db     *pgxpool.Pool
	policy domain.StoryPolicy
}

// NewPostgresRepository creates a new PostgreSQL repository. policy decides
// which stories every account write drops.
func NewPostgresRepository(db *pgxpool.Pool, policy domain.StoryPolicy) *PostgresRepository {
	return &PostgresRepository{db: db, policy: policy}
}

// Ping checks the pool can reach the database
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

// CreateAccount creates a new account
func (r *PostgresRepository) CreateAccount(ctx context.Context, params domain.CreateAccountParams) (*domain.Account, error) {
	tokens := []byte("[]")
	if params.Token != "" {
		var err error
		if tokens, err = element("token", params.Token); err != nil {
			return nil, err
		}
	}

	query := `
		INSERT INTO accounts (id, subject, display_name, handle, profile_pic_url, tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		RETURNING ` + accountColumns

	row := r.db.QueryRow(ctx, query,
		params.ID,
		params.Subject,
		params.DisplayName,
		domain.NormalizeHandle(params.Handle),
		params.ProfilePicURL,
		tokens,
		params.CreatedAt,
	)

	account, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "accounts_subject_key" {
				return nil, domain.ErrSubjectTaken
			}
			return nil, domain.ErrHandleTaken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// GetAccountByID retrieves an account by ID
func (r *PostgresRepository) GetAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountBySubject retrieves an account by identity provider subject
func (r *PostgresRepository) GetAccountBySubject(ctx context.Context, subject string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE subject = $1`, subject)
	return scanAccount(row)
}

// GetAccountByToken retrieves the account that registered a token fingerprint
func (r *PostgresRepository) GetAccountByToken(ctx context.Context, fingerprint string) (*domain.Account, error) {
	guard, err := element("token", fingerprint)
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tokens @> $1::jsonb`, guard)
	return scanAccount(row)
}

// GetAccountsByIDs returns the existing accounts among ids, in the order given
func (r *PostgresRepository) GetAccountsByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Account, error) {
	if len(ids) == 0 {
		return []*domain.Account{}, nil
	}

	query := `
		SELECT ` + prefixed("a", accountColumns) + `
		FROM unnest($1::uuid[]) WITH ORDINALITY AS wanted(id, ord)
		JOIN accounts a ON a.id = wanted.id
		ORDER BY wanted.ord`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, err
	}
	return dedupe(accounts), nil
}

// ListAccounts returns accounts newest first
func (r *PostgresRepository) ListAccounts(ctx context.Context, limit int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return collectAccounts(rows)
}

// SearchAccounts matches query as a literal case-insensitive substring of the
// handle or display name
func (r *PostgresRepository) SearchAccounts(ctx context.Context, query string, limit int) ([]*domain.Account, error) {
	stmt := `
		SELECT ` + accountColumns + `
		FROM accounts
		WHERE strpos(handle, lower($1)) > 0 OR strpos(lower(display_name), lower($1)) > 0
		ORDER BY created_at DESC, id
		LIMIT $2`

	rows, err := r.db.Query(ctx, stmt, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	return collectAccounts(rows)
}

// ScanAccounts visits every account in id order, one page at a time so no
// connection is held while fn runs
func (r *PostgresRepository) ScanAccounts(ctx context.Context, fn func(*domain.Account) error) error {
	after := uuid.Nil
	for {
		rows, err := r.db.Query(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id > $1 ORDER BY id LIMIT $2`,
			after, scanPageSize)
		if err != nil {
			return fmt.Errorf("scan accounts: %w", err)
		}
		page, err := collectAccounts(rows)
		if err != nil {
			return err
		}

		for _, a := range page {
			if err := fn(a); err != nil {
				return err
			}
		}
		if len(page) < scanPageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

// SetProfilePicture replaces the avatar URL
func (r *PostgresRepository) SetProfilePicture(ctx context.Context, id uuid.UUID, url string) error {
	query := `UPDATE accounts SET profile_pic_url = $2, story = ` + activeStories(3) + ` WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, url, r.policy.Cutoff())
	if err != nil {
		return fmt.Errorf("set profile picture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// PushToken registers a session token fingerprint
func (r *PostgresRepository) PushToken(ctx context.Context, id uuid.UUID, fingerprint string) error {
	_, err := r.push(ctx, "tokens", id, "token", fingerprint)
	return err
}

// PullToken removes a session token fingerprint
func (r *PostgresRepository) PullToken(ctx context.Context, id uuid.UUID, fingerprint string) error {
	_, err := r.pull(ctx, "tokens", id, "token", fingerprint)
	return err
}

func (r *PostgresRepository) AddFollowing(ctx context.Context, id, target uuid.UUID) (bool, error) {
	return r.push(ctx, "following", id, "userId", target)
}

func (r *PostgresRepository) RemoveFollowing(ctx context.Context, id, target uuid.UUID) (bool, error) {
	return r.pull(ctx, "following", id, "userId", target)
}

func (r *PostgresRepository) AddFollower(ctx context.Context, id, follower uuid.UUID) (bool, error) {
	return r.push(ctx, "followers", id, "userId", follower)
}

func (r *PostgresRepository) RemoveFollower(ctx context.Context, id, follower uuid.UUID) (bool, error) {
	return r.pull(ctx, "followers", id, "userId", follower)
}

func (r *PostgresRepository) AddSaved(ctx context.Context, id, postID uuid.UUID) (bool, error) {
	return r.push(ctx, "saved", id, "postId", postID)
}

func (r *PostgresRepository) RemoveSaved(ctx context.Context, id, postID uuid.UUID) (bool, error) {
	return r.pull(ctx, "saved", id, "postId", postID)
}

// push appends {field: value} to column unless an equal element is present.
func (r *PostgresRepository) push(ctx context.Context, column string, id uuid.UUID, field string, value any) (bool, error) {
	elem, err := element(field, value)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[1]s || $2::jsonb, story = %[2]s
		WHERE id = $1 AND NOT %[1]s @> $2::jsonb`, column, activeStories(3))

	tag, err := r.db.Exec(ctx, query, id, elem, r.policy.Cutoff())
	if err != nil {
		return false, fmt.Errorf("push %s: %w", column, err)
	}
	return r.changed(ctx, id, tag)
}

// pull removes every {field: value} element from column.
func (r *PostgresRepository) pull(ctx context.Context, column string, id uuid.UUID, field string, value any) (bool, error) {
	guard, err := element(field, value)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE accounts
		SET %[1]s = %[2]s, story = %[3]s
		WHERE id = $1 AND %[1]s @> $3::jsonb`, column, pulled(column, field, 2), activeStories(4))

	tag, err := r.db.Exec(ctx, query, id, fmt.Sprint(value), guard, r.policy.Cutoff())
	if err != nil {
		return false, fmt.Errorf("pull %s: %w", column, err)
	}
	return r.changed(ctx, id, tag)
}

// changed tells a guarded no-op apart from a missing record.
func (r *PostgresRepository) changed(ctx context.Context, id uuid.UUID, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check account: %w", err)
	}
	if !exists {
		return false, domain.ErrAccountNotFound
	}
	return false, nil
}

// PushStory appends a story item after dropping expired ones
func (r *PostgresRepository) PushStory(ctx context.Context, id uuid.UUID, item domain.StoryItem) (*domain.Account, error) {
	elem, err := elementOf(item)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE accounts
		SET story = ` + activeStories(3) + ` || $2::jsonb
		WHERE id = $1
		RETURNING ` + accountColumns

	return scanAccount(r.db.QueryRow(ctx, query, id, elem, r.policy.Cutoff()))
}

// PullExpiredStories removes every story item created at or before cutoff
// across all accounts in one statement
func (r *PostgresRepository) PullExpiredStories(ctx context.Context, cutoff time.Time) (domain.SweepResult, error) {
	query := `
		WITH expired AS (
			SELECT a.id, COUNT(*) AS removed
			FROM accounts a, jsonb_array_elements(a.story) AS item
			WHERE (item->>'createdAt')::timestamptz <= $1::timestamptz
			GROUP BY a.id
		), updated AS (
			UPDATE accounts
			SET story = ` + activeStories(1) + `
			FROM expired
			WHERE accounts.id = expired.id
			RETURNING expired.removed
		)
		SELECT COUNT(*), COALESCE(SUM(removed), 0)::bigint FROM updated`

	var result domain.SweepResult
	if err := r.db.QueryRow(ctx, query, cutoff).Scan(&result.Modified, &result.Removed); err != nil {
		return domain.SweepResult{}, fmt.Errorf("pull expired stories: %w", err)
	}
	result.Matched = result.Modified
	return result, nil
}

// Helper functions for scanning rows

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID,
		&a.Subject,
		&a.DisplayName,
		&a.Handle,
		&a.ProfilePicURL,
		&a.Tokens,
		&a.Saved,
		&a.Followers,
		&a.Following,
		&a.Story,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows pgx.Rows) ([]*domain.Account, error) {
	defer rows.Close()

	accounts := make([]*domain.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func dedupe(accounts []*domain.Account) []*domain.Account {
	seen := make(map[uuid.UUID]bool, len(accounts))
	out := accounts[:0]
	for _, a := range accounts {
		if !seen[a.ID] {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}
