package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChannovDenis/dobro20-sub000/internal/metrics"
	"github.com/ChannovDenis/dobro20-sub000/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/dobro.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/dobro.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		slug TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		logo_url TEXT NOT NULL DEFAULT '',
		ai_name TEXT NOT NULL DEFAULT '',
		welcome_text TEXT NOT NULL DEFAULT '',
		theme TEXT NOT NULL DEFAULT '{}',
		enabled_services TEXT NOT NULL DEFAULT '[]',
		quotas TEXT NOT NULL DEFAULT '{}',
		is_active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		display_name TEXT NOT NULL DEFAULT '',
		ai_requests_used INTEGER NOT NULL DEFAULT 0,
		tryons_used INTEGER NOT NULL DEFAULT 0,
		colortypes_used INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS user_roles (
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		PRIMARY KEY (user_id, role)
	);

	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		session_id TEXT NOT NULL DEFAULT '',
		tenant_id TEXT,
		title TEXT NOT NULL,
		service_type TEXT NOT NULL DEFAULT '',
		context TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS topic_messages (
		id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		tokens_used INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		user_id TEXT,
		session_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_topics_user ON topics(user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_topics_session ON topics(session_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_topic_messages_topic ON topic_messages(topic_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_analytics_events_created ON analytics_events(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func observeSQLite(start time.Time) {
	metrics.DBLatency.WithLabelValues("sqlite").Observe(time.Since(start).Seconds())
}

// uuidArg renders an optional uuid as a nullable TEXT value.
func uuidArg(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseOptionalUUID(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func scanSQLiteTopic(row interface{ Scan(...any) error }) (*models.Topic, error) {
	t := &models.Topic{}
	var idStr, status string
	var userID, tenantID, ctxJSON sql.NullString
	err := row.Scan(
		&idStr,
		&userID,
		&t.SessionID,
		&tenantID,
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
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("topic id %q: %w", idStr, err)
	}
	if t.UserID, err = parseOptionalUUID(userID); err != nil {
		return nil, fmt.Errorf("topic user id: %w", err)
	}
	if t.TenantID, err = parseOptionalUUID(tenantID); err != nil {
		return nil, fmt.Errorf("topic tenant id: %w", err)
	}
	if ctxJSON.Valid && ctxJSON.String != "" {
		t.Context = json.RawMessage(ctxJSON.String)
	}
	t.Status = models.TopicStatus(status)
	return t, nil
}

// CreateTopic inserts a topic, filling in ID, status and timestamps when unset.
func (s *SQLiteStore) CreateTopic(ctx context.Context, topic *models.Topic) error {
	defer observeSQLite(time.Now())
	if topic.ID == uuid.Nil {
		topic.ID = uuid.New()
	}
	if topic.Status == "" {
		topic.Status = models.TopicActive
	}
	now := time.Now().UTC()
	topic.CreatedAt, topic.UpdatedAt = now, now

	var ctxArg *string
	if len(topic.Context) > 0 {
		v := string(topic.Context)
		ctxArg = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topics (id, user_id, session_id, tenant_id, title, service_type, context, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, topic.ID.String(), uuidArg(topic.UserID), topic.SessionID, uuidArg(topic.TenantID),
		topic.Title, topic.ServiceType, ctxArg, string(topic.Status), now, now)
	return err
}

// GetTopic retrieves a topic by ID.
func (s *SQLiteStore) GetTopic(ctx context.Context, id uuid.UUID) (*models.Topic, error) {
	defer observeSQLite(time.Now())
	t, err := scanSQLiteTopic(s.db.QueryRowContext(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListTopics returns the owner's topics, most recently updated first.
func (s *SQLiteStore) ListTopics(ctx context.Context, filter models.TopicFilter) ([]models.Topic, error) {
	defer observeSQLite(time.Now())

	var conds []string
	var args []any
	if filter.Owner.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, filter.Owner.UserID.String())
	} else {
		conds = append(conds, "user_id IS NULL", "session_id = ?")
		args = append(args, filter.Owner.SessionID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	args = append(args, topicLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+topicColumns+` FROM topics
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY updated_at DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	topics := []models.Topic{}
	for rows.Next() {
		t, err := scanSQLiteTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// UpdateTopic applies the non-nil fields of upd and touches updated_at.
func (s *SQLiteStore) UpdateTopic(ctx context.Context, id uuid.UUID, upd models.TopicUpdate) (*models.Topic, error) {
	defer observeSQLite(time.Now())

	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if len(upd.Context) > 0 {
		sets = append(sets, "context = ?")
		args = append(args, string(upd.Context))
	}
	args = append(args, id.String())

	res, err := s.db.ExecContext(ctx, `UPDATE topics SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetTopic(ctx, id)
}

// DeleteTopic removes a topic and its messages.
func (s *SQLiteStore) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	defer observeSQLite(time.Now())
	res, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTopicMessage inserts a message row and touches its topic.
func (s *SQLiteStore) AddTopicMessage(ctx context.Context, msg *models.TopicMessage) error {
	defer observeSQLite(time.Now())
	prepareMessage(msg)

	md, err := models.MarshalMetadata(msg.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO topic_messages (id, topic_id, role, content, metadata, tokens_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.TopicID.String(), string(msg.Role), msg.Content, string(md), msg.TokensUsed, msg.CreatedAt.UTC())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE topics SET updated_at = ? WHERE id = ?`, time.Now().UTC(), msg.TopicID.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTopicMessages returns a topic's messages oldest first. limit <= 0 returns all.
func (s *SQLiteStore) ListTopicMessages(ctx context.Context, topicID uuid.UUID, limit int) ([]models.TopicMessage, error) {
	defer observeSQLite(time.Now())
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, metadata, tokens_used, created_at
		FROM topic_messages
		WHERE topic_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, topicID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.TopicMessage{}
	for rows.Next() {
		m := models.TopicMessage{TopicID: topicID}
		var role, md string
		if err := rows.Scan(&m.ID, &role, &m.Content, &md, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		if m.Metadata, err = models.UnmarshalMetadata([]byte(md)); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountTopicMessages returns the number of messages in a topic.
func (s *SQLiteStore) CountTopicMessages(ctx context.Context, topicID uuid.UUID) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topic_messages WHERE topic_id = ?`, topicID.String()).Scan(&n)
	return n, err
}

// GetTenantBySlug retrieves a tenant by slug.
func (s *SQLiteStore) GetTenantBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	return s.getTenant(ctx, "slug", slug)
}

// GetTenantByID retrieves a tenant by ID.
func (s *SQLiteStore) GetTenantByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.getTenant(ctx, "id", id.String())
}

// getTenant reads one tenant row; column is a fixed identifier, never input.
func (s *SQLiteStore) getTenant(ctx context.Context, column, value string) (*models.Tenant, error) {
	t := &models.Tenant{}
	var idStr, theme, services, quotas string
	var isActive int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, logo_url, ai_name, welcome_text, theme, enabled_services, quotas, is_active
		FROM tenants WHERE `+column+` = ?
	`, value).Scan(
		&idStr,
		&t.Slug,
		&t.Name,
		&t.LogoURL,
		&t.AIName,
		&t.WelcomeText,
		&theme,
		&services,
		&quotas,
		&isActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("tenant id %q: %w", idStr, err)
	}
	t.IsActive = isActive == 1
	if err := decodeTenantJSON(t, []byte(theme), []byte(services), []byte(quotas)); err != nil {
		return nil, err
	}
	return t, nil
}

// UpsertTenant inserts or replaces a tenant keyed by slug.
func (s *SQLiteStore) UpsertTenant(ctx context.Context, t *models.Tenant) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	theme, services, quotas, err := encodeTenantJSON(t)
	if err != nil {
		return err
	}
	isActive := 0
	if t.IsActive {
		isActive = 1
	}

	var idStr string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO tenants (id, slug, name, logo_url, ai_name, welcome_text, theme, enabled_services, quotas, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			logo_url = excluded.logo_url,
			ai_name = excluded.ai_name,
			welcome_text = excluded.welcome_text,
			theme = excluded.theme,
			enabled_services = excluded.enabled_services,
			quotas = excluded.quotas,
			is_active = excluded.is_active
		RETURNING id
	`, t.ID.String(), t.Slug, t.Name, t.LogoURL, t.AIName, t.WelcomeText,
		string(theme), string(services), string(quotas), isActive).Scan(&idStr)
	if err != nil {
		return err
	}
	t.ID, err = uuid.Parse(idStr)
	return err
}

// GetProfile retrieves a user's profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	p := &models.Profile{ID: userID}
	var tenantID sql.NullString
	var createdAt, updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, display_name, ai_requests_used, tryons_used, colortypes_used, created_at, updated_at
		FROM profiles WHERE id = ?
	`, userID.String()).Scan(
		&tenantID,
		&p.DisplayName,
		&p.AIRequestsUsed,
		&p.TryOnsUsed,
		&p.ColorTypesUsed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if p.TenantID, err = parseOptionalUUID(tenantID); err != nil {
		return nil, fmt.Errorf("profile tenant id: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = createdAt.Time, updatedAt.Time
	return p, nil
}

// IncrementUsage adds one to the counter for kind, creating the profile if needed.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, userID uuid.UUID, kind models.QuotaKind) error {
	col, ok := usageColumn(kind)
	if !ok {
		return fmt.Errorf("unknown quota kind %q", kind)
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, `+col+`, created_at, updated_at) VALUES (?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET `+col+` = `+col+` + 1, updated_at = excluded.updated_at
	`, userID.String(), now, now)
	return err
}

// BindProfileTenant records the tenant a user belongs to, creating the
// profile if needed. An existing binding is never replaced.
func (s *SQLiteStore) BindProfileTenant(ctx context.Context, userID, tenantID uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, tenant_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET tenant_id = COALESCE(profiles.tenant_id, excluded.tenant_id)
	`, userID.String(), tenantID.String(), now, now)
	return err
}

// HasRole reports whether the user holds role.
func (s *SQLiteStore) HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?
	`, userID.String(), role).Scan(&n)
	return n > 0, err
}

// GrantRole assigns role to the user.
func (s *SQLiteStore) GrantRole(ctx context.Context, userID uuid.UUID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO user_roles (user_id, role) VALUES (?, ?)
	`, userID.String(), role)
	return err
}

// RecordEvent inserts an analytics event.
func (s *SQLiteStore) RecordEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	prepareEvent(event)
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (id, tenant_id, user_id, session_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, event.ID, uuidArg(event.TenantID), uuidArg(event.UserID), event.SessionID, event.EventType,
		string(payload), event.CreatedAt.UTC())
	return err
}

// CountTopicsByStatus returns topic counts grouped by status.
func (s *SQLiteStore) CountTopicsByStatus(ctx context.Context) (map[models.TopicStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM topics GROUP BY status`)
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
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topic_messages`).Scan(&n)
	return n, err
}

// CountEventsSince returns analytics event counts by type since the given time.
func (s *SQLiteStore) CountEventsSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= ?
		GROUP BY event_type
	`, since.UTC())
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

// sqliteTimeFormats are the layouts go-sqlite3 writes time.Time values with.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// GetMostRecentActivity returns the latest topic update, or nil when there are no topics.
// Aggregates lose the column type, so the value comes back as text.
func (s *SQLiteStore) GetMostRecentActivity(ctx context.Context) (*time.Time, error) {
	var raw sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM topics`).Scan(&raw); err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, raw.String); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised timestamp %q", raw.String)
}
