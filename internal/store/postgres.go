package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observePostgres(start time.Time) {
	metrics.DBLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
}

const topicColumns = `id, user_id, session_id, tenant_id, title, service_type, context, status, created_at, updated_at`

func scanPostgresTopic(row pgx.Row) (*models.Topic, error) {
	t := &models.Topic{}
	var ctxJSON []byte
	var status string
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.SessionID,
		&t.TenantID,
		&t.Title,
		&t.ServiceType,
		&ctxJSON,
		&status,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(ctxJSON) > 0 {
		t.Context = json.RawMessage(ctxJSON)
	}
	t.Status = models.TopicStatus(status)
	return t, nil
}

// jsonArg turns an empty raw JSON value into SQL NULL.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

// CreateTopic inserts a topic, filling in ID, status and timestamps when unset.
func (s *PostgresStore) CreateTopic(ctx context.Context, topic *models.Topic) error {
	defer observePostgres(time.Now())
	if topic.ID == uuid.Nil {
		topic.ID = uuid.New()
	}
	if topic.Status == "" {
		topic.Status = models.TopicActive
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO topics (id, user_id, session_id, tenant_id, title, service_type, context, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, topic.ID, topic.UserID, topic.SessionID, topic.TenantID, topic.Title, topic.ServiceType,
		jsonArg(topic.Context), string(topic.Status)).Scan(&topic.CreatedAt, &topic.UpdatedAt)
}

// GetTopic retrieves a topic by ID.
func (s *PostgresStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	defer observePostgres(time.Now())
	t, err := scanPostgresTopic(s.pool.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListTopics returns the owner's topics, most recently updated first.
func (s *PostgresStore) ListTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, error) {
	defer observePostgres(time.Now())

	query := `SELECT ` + topicColumns + ` FROM topics WHERE `
	var args []any
	if filter.Owner.UserID != nil {
		query += `user_id = $1`
		args = append(args, *filter.Owner.UserID)
	} else {
		query += `user_id IS NULL AND session_id = $1`
		args = append(args, filter.Owner.SessionID)
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, topicLimit(filter.Limit), filter.Offset)
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := []models.Topic{}
	for rows.Next() {
		t, err := scanPostgresTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// UpdateTopic applies the non-nil fields of upd and touches updated_at.
func (s *PostgresStore) UpdateTopic(ctx context.Context, id uuid.UUID, upd models.TopicUpdate) (*models.Topic, error) {
	defer observePostgres(time.Now())

	var status *string
	if upd.Status != nil {
		v := string(*upd.Status)
		status = &v
	}

	t, err := scanPostgresTopic(s.pool.QueryRow(ctx, `
		UPDATE topics SET
			title = COALESCE($2, title),
			status = COALESCE($3, status),
			context = COALESCE($4, context),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+topicColumns, id, upd.Title, status, jsonArg(upd.Context)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// DeleteTopic removes a topic and, by cascade, its messages.
func (s *PostgresStore) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	defer observePostgres(time.Now())
	tag, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTopicMessage inserts a message row and touches its topic.
func (s *PostgresStore) AddTopicMessage(ctx context.Context, msg *models.TopicMessage) error {
	defer observePostgres(time.Now())
	prepareMessage(msg)

	md, err := models.MarshalMetadata(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO topic_messages (id, topic_id, role, content, metadata, tokens_used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.TopicID, string(msg.Role), msg.Content, md, msg.TokensUsed, msg.CreatedAt)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE topics SET updated_at = NOW() WHERE id = $1`, msg.TopicID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListTopicMessages returns a topic's messages oldest first. limit <= 0 returns all.
func (s *PostgresStore) ListTopicMessages(ctx context.Context, topicID uuid.UUID, limit int) ([]models.TopicMessage, error) {
	defer observePostgres(time.Now())

	query := `
		SELECT id, topic_id, role, content, metadata, tokens_used, created_at
		FROM topic_messages
		WHERE topic_id = $1
		ORDER BY created_at ASC, id ASC`
	args := []any{topicID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.TopicMessage{}
	for rows.Next() {
		var m models.TopicMessage
		var role string
		var md []byte
		if err := rows.Scan(&m.ID, &m.TopicID, &role, &m.Content, &md, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		if m.Metadata, err = models.UnmarshalMetadata(md); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountTopicMessages returns the number of messages in a topic.
func (s *PostgresStore) CountTopicMessages(ctx context.Context, topicID uuid.UUID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM topic_messages WHERE topic_id = $1`, topicID).Scan(&n)
	return n, err
}

// GetTenantBySlug retrieves a tenant by slug.
func (s *PostgresStore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.getTenant(ctx, "slug", slug)
}

// GetTenantByID retrieves a tenant by ID.
func (s *PostgresStore) GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getTenant(ctx, "id", id)
}

// getTenant reads one tenant row; column is a fixed identifier, never input.
func (s *PostgresStore) getTenant(ctx context.Context, column string, value any) (*models.Tenant, error) {
	defer observePostgres(time.Now())
	t := &models.Tenant{}
	var theme, services, quotas []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, name, logo_url, ai_name, welcome_text, theme, enabled_services, quotas, is_active
		FROM tenants WHERE `+column+` = $1
	`, value).Scan(
		&t.ID,
		&t.Slug,
		&t.Name,
		&t.LogoURL,
		&t.AIName,
		&t.WelcomeText,
		&theme,
		&services,
		&quotas,
		&t.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := decodeTenantJSON(t, theme, services, quotas); err != nil {
		return nil, err
	}
	return t, nil
}

// UpsertTenant inserts or replaces a tenant keyed by slug.
func (s *PostgresStore) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	theme, services, quotas, err := encodeTenantJSON(t)
	if err != nil {
		return err
	}
	return s.pool.QueryRow(ctx, `
		INSERT INTO tenants (id, slug, name, logo_url, ai_name, welcome_text, theme, enabled_services, quotas, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			logo_url = EXCLUDED.logo_url,
			ai_name = EXCLUDED.ai_name,
			welcome_text = EXCLUDED.welcome_text,
			theme = EXCLUDED.theme,
			enabled_services = EXCLUDED.enabled_services,
			quotas = EXCLUDED.quotas,
			is_active = EXCLUDED.is_active
		RETURNING id
	`, t.ID, t.Slug, t.Name, t.LogoURL, t.AIName, t.WelcomeText, theme, services, quotas, t.IsActive).Scan(&t.ID)
}

// GetProfile retrieves a user's profile.
func (s *PostgresStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, display_name, ai_requests_used, tryons_used, colortypes_used, created_at, updated_at
		FROM profiles WHERE id = $1
	`, userID).Scan(
		&p.ID,
		&p.TenantID,
		&p.DisplayName,
		&p.AIRequestsUsed,
		&p.TryOnsUsed,
		&p.ColorTypesUsed,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// IncrementUsage adds one to the counter for kind, creating the profile if needed.
func (s *PostgresStore) IncrementUsage(ctx context.Context, userID uuid.UUID, kind models.QuotaKind) error {
	col, ok := usageColumn(kind)
	if !ok {
		return fmt.Errorf("unknown quota kind %q", kind)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, `+col+`) VALUES ($1, 1)
		ON CONFLICT (id) DO UPDATE SET `+col+` = profiles.`+col+` + 1, updated_at = NOW()
	`, userID)
	return err
}

// BindProfileTenant records the tenant a user belongs to, creating the
// profile if needed. An existing binding is never replaced.
func (s *PostgresStore) BindProfileTenant(ctx context.Context, userID, tenantID uuid.UUID) error {
	defer observePostgres(time.Now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (id, tenant_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET tenant_id = COALESCE(profiles.tenant_id, EXCLUDED.tenant_id)
	`, userID, tenantID)
	return err
}

// HasRole reports whether the user holds role.
func (s *PostgresStore) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)
	`, userID, role).Scan(&exists)
	return exists, err
}

// GrantRole assigns role to the user.
func (s *PostgresStore) GrantRole(ctx context.Context, userID uuid.UUID, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING
	`, userID, role)
	return err
}

// RecordEvent inserts an analytics event.
func (s *PostgresStore) RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	prepareEvent(event)
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO analytics_events (id, tenant_id, user_id, session_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, event.ID, event.TenantID, event.UserID, event.SessionID, event.EventType, payload, event.CreatedAt)
	return err
}

// CountTopicsByStatus returns topic counts grouped by status.
func (s *PostgresStore) CountTopicsByStatus(ctx context.Context) (map[models.TopicStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM topics GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.TopicStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[models.TopicStatus(status)] = n
	}
	return counts, rows.Err()
}

// CountMessages returns the total number of topic messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM topic_messages`).Scan(&n)
	return n, err
}

// CountEventsSince returns analytics event counts by type since the given time.
func (s *PostgresStore) CountEventsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= $1
		GROUP BY event_type
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, err
		}
		counts[eventType] = n
	}
	return counts, rows.Err()
}

// GetMostRecentActivity returns the latest topic update, or nil when there are no topics.
func (s *PostgresStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var t *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(updated_at) FROM topics`).Scan(&t)
	if err != nil {
		return nil, err
	}
	return t, nil
}
