package config

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/foyerhq/foyer/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// Settings keys used by the typed accessors below.
const (
	settingPasswordHash = "admin.password_hash"
	settingBootstrapped = "admin.bootstrapped"
)

// Store holds Foyer's control-plane state backed by SQLite: the admin
// credential, active admin sessions, API keys, webhook subscriptions, and
// room metadata. With an empty dataDir the store is memory-resident and
// vanishes with the process.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new store. Pass empty string for in-memory.
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "foyer.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying database connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Admin credential
// ---------------------------------------------------------------------------

// GetAdminPasswordHash returns the stored admin password hash, or the empty
// string when no password has been established yet.
func (s *Store) GetAdminPasswordHash(ctx context.Context) (string, error) {
	v, err := s.GetSetting(ctx, settingPasswordHash)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetAdminPasswordHash stores the admin password hash. The login flow calls
// this at most once, on first-login bootstrap; the CLI may also call it to
// seed or reset the credential offline.
func (s *Store) SetAdminPasswordHash(ctx context.Context, hash string) error {
	return s.SetSetting(ctx, settingPasswordHash, hash)
}

// IsBootstrapped reports whether a successful admin login has occurred yet.
// Until then the raw password is also accepted as a bearer credential so a
// fresh install can drive the admin API before its first login completes.
func (s *Store) IsBootstrapped(ctx context.Context) (bool, error) {
	v, err := s.GetSetting(ctx, settingBootstrapped)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// MarkBootstrapped records that the first successful login has happened.
func (s *Store) MarkBootstrapped(ctx context.Context) error {
	return s.SetSetting(ctx, settingBootstrapped, "1")
}

// ---------------------------------------------------------------------------
// Admin sessions
// ---------------------------------------------------------------------------

// CreateSession inserts a new admin session.
func (s *Store) CreateSession(ctx context.Context, sess *model.AdminSession) error {
	const q = `INSERT INTO admin_sessions (token, created_at, expires_at)
		VALUES (:token, :created_at, :expires_at)`

	if _, err := s.db.NamedExecContext(ctx, q, sess); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns a session by its token.
func (s *Store) GetSession(ctx context.Context, token string) (*model.AdminSession, error) {
	var sess model.AdminSession
	if err := s.db.GetContext(ctx, &sess, "SELECT * FROM admin_sessions WHERE token = ?", token); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session by its token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredSessions removes every session whose expiry is at or before
// now, returning the number of sessions swept.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM admin_sessions WHERE expires_at <= ?", now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// apiKeyRow is a flat struct that maps 1:1 to the api_keys table columns.
// The permissions_json column stores the JSON-encoded permission list.
type apiKeyRow struct {
	ID              string     `db:"id"`
	Name            string     `db:"name"`
	KeyHash         string     `db:"key_hash"`
	KeyMask         string     `db:"key_mask"`
	PermissionsJSON string     `db:"permissions_json"`
	CreatedAt       time.Time  `db:"created_at"`
	LastUsedAt      *time.Time `db:"last_used_at"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	permsJSON, err := json.Marshal(k.Permissions)
	if err != nil {
		return apiKeyRow{}, fmt.Errorf("marshal permissions: %w", err)
	}
	return apiKeyRow{
		ID:              k.ID,
		Name:            k.Name,
		KeyHash:         k.KeyHash,
		KeyMask:         k.KeyMask,
		PermissionsJSON: string(permsJSON),
		CreatedAt:       k.CreatedAt,
		LastUsedAt:      k.LastUsedAt,
	}, nil
}

func (r apiKeyRow) toModel() (model.APIKey, error) {
	var perms []string
	if err := json.Unmarshal([]byte(r.PermissionsJSON), &perms); err != nil {
		return model.APIKey{}, fmt.Errorf("unmarshal permissions: %w", err)
	}
	return model.APIKey{
		ID:          r.ID,
		Name:        r.Name,
		KeyHash:     r.KeyHash,
		KeyMask:     r.KeyMask,
		Permissions: perms,
		CreatedAt:   r.CreatedAt,
		LastUsedAt:  r.LastUsedAt,
	}, nil
}

// CreateAPIKey inserts a new API key record. The key_hash must already be
// set (use HashSecret). The CreatedAt field is populated after insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.CreatedAt = time.Now().UTC()

	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys
		(id, name, key_hash, key_mask, permissions_json, created_at, last_used_at)
		VALUES
		(:id, :name, :key_hash, :key_mask, :permissions_json, :created_at, :last_used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up an API key by the SHA-256 hash of its raw value.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	key, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]model.APIKey, 0, len(rows))
	for _, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// DeleteAPIKey removes an API key by ID.
func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed sets the last_used_at timestamp for an API key.
func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE id = ?", now, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update api key last used rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountAPIKeys returns the number of stored API keys.
func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM api_keys"); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Webhooks
// ---------------------------------------------------------------------------

// webhookRow is a flat struct that maps 1:1 to the webhooks table columns.
// The events_json column stores the JSON-encoded event type list.
type webhookRow struct {
	ID              string     `db:"id"`
	Name            string     `db:"name"`
	URL             string     `db:"url"`
	EventsJSON      string     `db:"events_json"`
	Enabled         bool       `db:"enabled"`
	Secret          string     `db:"secret"`
	CreatedAt       time.Time  `db:"created_at"`
	LastTriggeredAt *time.Time `db:"last_triggered_at"`
	FailureCount    int        `db:"failure_count"`
}

func webhookRowFromModel(w *model.Webhook) (webhookRow, error) {
	eventsJSON, err := json.Marshal(w.Events)
	if err != nil {
		return webhookRow{}, fmt.Errorf("marshal events: %w", err)
	}
	return webhookRow{
		ID:              w.ID,
		Name:            w.Name,
		URL:             w.URL,
		EventsJSON:      string(eventsJSON),
		Enabled:         w.Enabled,
		Secret:          w.Secret,
		CreatedAt:       w.CreatedAt,
		LastTriggeredAt: w.LastTriggeredAt,
		FailureCount:    w.FailureCount,
	}, nil
}

func (r webhookRow) toModel() (model.Webhook, error) {
	var events []string
	if err := json.Unmarshal([]byte(r.EventsJSON), &events); err != nil {
		return model.Webhook{}, fmt.Errorf("unmarshal events: %w", err)
	}
	return model.Webhook{
		ID:              r.ID,
		Name:            r.Name,
		URL:             r.URL,
		Events:          events,
		Enabled:         r.Enabled,
		Secret:          r.Secret,
		CreatedAt:       r.CreatedAt,
		LastTriggeredAt: r.LastTriggeredAt,
		FailureCount:    r.FailureCount,
	}, nil
}

// CreateWebhook inserts a new webhook subscription. The CreatedAt field is
// populated after a successful insert.
func (s *Store) CreateWebhook(ctx context.Context, w *model.Webhook) error {
	w.CreatedAt = time.Now().UTC()

	row, err := webhookRowFromModel(w)
	if err != nil {
		return err
	}

	const q = `INSERT INTO webhooks
		(id, name, url, events_json, enabled, secret, created_at, last_triggered_at, failure_count)
		VALUES
		(:id, :name, :url, :events_json, :enabled, :secret, :created_at, :last_triggered_at, :failure_count)`

	if _, err := s.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id string) (*model.Webhook, error) {
	var row webhookRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM webhooks WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get webhook: %w", err)
	}
	w, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWebhooks returns all webhook subscriptions, newest first.
func (s *Store) ListWebhooks(ctx context.Context) ([]model.Webhook, error) {
	var rows []webhookRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM webhooks ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}

	hooks := make([]model.Webhook, 0, len(rows))
	for _, r := range rows {
		w, err := r.toModel()
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, w)
	}
	return hooks, nil
}

// UpdateWebhook rewrites a webhook's mutable fields (name, url, events,
// enabled). Delivery accounting columns are owned by RecordDeliveryOutcome
// and left untouched here.
func (s *Store) UpdateWebhook(ctx context.Context, w *model.Webhook) error {
	row, err := webhookRowFromModel(w)
	if err != nil {
		return err
	}

	const q = `UPDATE webhooks SET
		name = :name, url = :url, events_json = :events_json, enabled = :enabled
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update webhook rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook by ID.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM webhooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete webhook rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDeliveryOutcome updates a webhook's delivery accounting after an
// attempt. The last_triggered_at column is always set to the attempt time;
// the failure counter resets to zero on success and increments otherwise.
func (s *Store) RecordDeliveryOutcome(ctx context.Context, id string, success bool, at time.Time) error {
	q := "UPDATE webhooks SET last_triggered_at = ?, failure_count = failure_count + 1 WHERE id = ?"
	if success {
		q = "UPDATE webhooks SET last_triggered_at = ?, failure_count = 0 WHERE id = ?"
	}

	result, err := s.db.ExecContext(ctx, q, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("record delivery outcome: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record delivery outcome rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountWebhooks returns the number of stored webhook subscriptions.
func (s *Store) CountWebhooks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM webhooks"); err != nil {
		return 0, fmt.Errorf("count webhooks: %w", err)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Room metadata
// ---------------------------------------------------------------------------

// UpsertRoomMetadata creates or updates the display-name overlay for a room.
func (s *Store) UpsertRoomMetadata(ctx context.Context, meta *model.RoomMetadata) error {
	now := time.Now().UTC()
	meta.UpdatedAt = now
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}

	const q = `INSERT INTO room_metadata (room_name, display_name, created_at, updated_at)
		VALUES (:room_name, :display_name, :created_at, :updated_at)
		ON CONFLICT(room_name) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at = excluded.updated_at`

	if _, err := s.db.NamedExecContext(ctx, q, meta); err != nil {
		return fmt.Errorf("upsert room metadata: %w", err)
	}
	return nil
}

// GetRoomMetadata returns the metadata overlay for a room name.
func (s *Store) GetRoomMetadata(ctx context.Context, roomName string) (*model.RoomMetadata, error) {
	var meta model.RoomMetadata
	if err := s.db.GetContext(ctx, &meta, "SELECT * FROM room_metadata WHERE room_name = ?", roomName); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get room metadata: %w", err)
	}
	return &meta, nil
}

// ListRoomMetadata returns all metadata overlays keyed by room name.
func (s *Store) ListRoomMetadata(ctx context.Context) (map[string]model.RoomMetadata, error) {
	var rows []model.RoomMetadata
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM room_metadata"); err != nil {
		return nil, fmt.Errorf("list room metadata: %w", err)
	}

	out := make(map[string]model.RoomMetadata, len(rows))
	for _, m := range rows {
		out[m.RoomName] = m
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = ?", key); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any existing value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	const q = `INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`

	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

// HashSecret returns the hex-encoded SHA-256 digest of a raw secret (an API
// key or the admin password). Stored credentials are only ever compared by
// digest.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}
