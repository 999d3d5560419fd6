package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by updates that match no site.
var ErrNotFound = errors.New("site not found")

// SiteRegistry stores site records in SQLite. Every billing mutation is a
// field-level UPDATE so concurrent writers to different fields never clobber
// each other.
type SiteRegistry struct {
	db *sql.DB
}

// NewSiteRegistry opens (or creates) the site registry database in dir.
func NewSiteRegistry(dir string) (*SiteRegistry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dbPath := filepath.Join(dir, "sites.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open site registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &SiteRegistry{db: db}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SiteRegistry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sites (
		id                  TEXT PRIMARY KEY,
		owner_id            TEXT NOT NULL DEFAULT '',
		site_name           TEXT NOT NULL DEFAULT '',
		owner_name          TEXT NOT NULL DEFAULT '',
		owner_address       TEXT NOT NULL DEFAULT '',
		owner_email         TEXT NOT NULL DEFAULT '',
		owner_phone         TEXT NOT NULL DEFAULT '',
		homepage_url        TEXT NOT NULL DEFAULT '',
		stripe_customer_id  TEXT,
		is_free_plan        INTEGER,
		subscription_status TEXT NOT NULL DEFAULT '',
		cancel_pending      INTEGER NOT NULL DEFAULT 0,
		created_at          INTEGER NOT NULL,
		updated_at          INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sites_stripe_customer_id ON sites(stripe_customer_id);

	CREATE TABLE IF NOT EXISTS owners (
		id            TEXT PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhook_events (
		id            TEXT PRIMARY KEY,
		event_id      TEXT NOT NULL,
		event_type    TEXT NOT NULL,
		customer_ref  TEXT NOT NULL DEFAULT '',
		site_key      TEXT NOT NULL DEFAULT '',
		outcome       TEXT NOT NULL,
		event_created INTEGER NOT NULL,
		received_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_webhook_events_event_id ON webhook_events(event_id);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("init site registry schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (r *SiteRegistry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (r *SiteRegistry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

const siteColumns = `
		id, owner_id, site_name, owner_name, owner_address, owner_email, owner_phone,
		homepage_url, stripe_customer_id, is_free_plan, subscription_status, cancel_pending,
		created_at, updated_at`

// Put writes the full site record, replacing any existing record with the same
// key. This is the registration overwrite path; billing fields are reset to
// whatever s carries.
func (r *SiteRegistry) Put(ctx context.Context, s *Site) error {
	return putSite(ctx, r.db, s)
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putSite(ctx context.Context, ex execer, s *Site) error {
	if s == nil {
		return fmt.Errorf("site is nil")
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err := ex.ExecContext(ctx, `
		INSERT INTO sites (`+siteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id = excluded.owner_id,
			site_name = excluded.site_name,
			owner_name = excluded.owner_name,
			owner_address = excluded.owner_address,
			owner_email = excluded.owner_email,
			owner_phone = excluded.owner_phone,
			homepage_url = excluded.homepage_url,
			stripe_customer_id = excluded.stripe_customer_id,
			is_free_plan = excluded.is_free_plan,
			subscription_status = excluded.subscription_status,
			cancel_pending = excluded.cancel_pending,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		s.Key, s.OwnerID, s.SiteName, s.OwnerName, s.OwnerAddress, s.OwnerEmail, s.OwnerPhone,
		s.HomepageURL, nullableString(s.PaymentCustomerRef), nullableBool(s.IsFreePlan),
		string(s.SubscriptionStatus), boolToInt(s.CancelPending),
		s.CreatedAt.Unix(), s.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put site: %w", err)
	}
	return nil
}

// Exists reports whether a site record exists for key.
func (r *SiteRegistry) Exists(ctx context.Context, key string) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE id = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("check site exists: %w", err)
	}
	return n > 0, nil
}

// Get retrieves a site by key. It returns (nil, nil) when no site matches.
func (r *SiteRegistry) Get(ctx context.Context, key string) (*Site, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+siteColumns+` FROM sites WHERE id = ?`, key)
	return scanSite(row)
}

// FindByCustomerRef returns the first site whose payment customer reference
// equals ref, or (nil, nil) when none does.
func (r *SiteRegistry) FindByCustomerRef(ctx context.Context, ref string) (*Site, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT`+siteColumns+`
		FROM sites WHERE stripe_customer_id = ? ORDER BY created_at, id LIMIT 1`, ref)
	return scanSite(row)
}

// List returns all sites, newest first.
func (r *SiteRegistry) List(ctx context.Context) ([]*Site, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT`+siteColumns+` FROM sites ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()
	return scanSites(rows)
}

// CountBySubscriptionStatus returns a map of persisted status -> count.
func (r *SiteRegistry) CountBySubscriptionStatus(ctx context.Context) (map[SubscriptionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT subscription_status, COUNT(*) FROM sites GROUP BY subscription_status`)
	if err != nil {
		return nil, fmt.Errorf("count sites by subscription status: %w", err)
	}
	defer rows.Close()

	counts := make(map[SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[SubscriptionStatus(status)] = count
	}
	return counts, rows.Err()
}

// MarkCheckoutCompleted records the customer reference from a completed
// checkout and marks the subscription active.
func (r *SiteRegistry) MarkCheckoutCompleted(ctx context.Context, key, customerRef string) error {
	return r.exec(ctx, "mark checkout completed", `
		UPDATE sites SET stripe_customer_id = ?, subscription_status = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(customerRef), string(SubscriptionStatusActive), time.Now().UTC().Unix(), key)
}

// SetSubscriptionStatus overwrites the persisted subscription status.
func (r *SiteRegistry) SetSubscriptionStatus(ctx context.Context, key string, status SubscriptionStatus) error {
	return r.exec(ctx, "set subscription status", `
		UPDATE sites SET subscription_status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC().Unix(), key)
}

// SetCancelPending overwrites the cancel-pending flag.
func (r *SiteRegistry) SetCancelPending(ctx context.Context, key string, pending bool) error {
	return r.exec(ctx, "set cancel pending", `
		UPDATE sites SET cancel_pending = ?, updated_at = ? WHERE id = ?`,
		boolToInt(pending), time.Now().UTC().Unix(), key)
}

// Update applies a partial metadata update.
func (r *SiteRegistry) Update(ctx context.Context, key string, u SiteUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	if u.SiteName != nil {
		add("site_name", *u.SiteName)
	}
	if u.OwnerName != nil {
		add("owner_name", *u.OwnerName)
	}
	if u.OwnerAddress != nil {
		add("owner_address", *u.OwnerAddress)
	}
	if u.OwnerPhone != nil {
		add("owner_phone", *u.OwnerPhone)
	}
	if u.HomepageURL != nil {
		add("homepage_url", *u.HomepageURL)
	}
	if u.IsFreePlan != nil {
		add("is_free_plan", boolToInt(*u.IsFreePlan))
	}
	if u.PaymentCustomerRef != nil {
		add("stripe_customer_id", nullableString(*u.PaymentCustomerRef))
	}
	add("updated_at", time.Now().UTC().Unix())
	args = append(args, key)

	return r.exec(ctx, "update site", `UPDATE sites SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
}

func (r *SiteRegistry) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSite(s scanner) (*Site, error) {
	var site Site
	var status string
	var customerRef sql.NullString
	var freePlan sql.NullInt64
	var cancelPending int
	var createdAt, updatedAt int64

	err := s.Scan(
		&site.Key, &site.OwnerID, &site.SiteName, &site.OwnerName, &site.OwnerAddress,
		&site.OwnerEmail, &site.OwnerPhone, &site.HomepageURL, &customerRef, &freePlan,
		&status, &cancelPending, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan site: %w", err)
	}

	site.SubscriptionStatus = SubscriptionStatus(status)
	if customerRef.Valid {
		site.PaymentCustomerRef = customerRef.String
	}
	if freePlan.Valid {
		v := freePlan.Int64 != 0
		site.IsFreePlan = &v
	}
	site.CancelPending = cancelPending != 0
	site.CreatedAt = time.Unix(createdAt, 0).UTC()
	site.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &site, nil
}

func scanSites(rows *sql.Rows) ([]*Site, error) {
	var sites []*Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func nullableString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
