package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/diploy/hostfleet/domains/tenants/be/service"
	"github.com/diploy/hostfleet/platform/go/schema"
)

// Seeder writes the initial content into a freshly created namespace:
// site options, the admin account, a default category, and a first post.
type Seeder struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewSeeder(pool *pgxpool.Pool) *Seeder {
	if pool == nil {
		panic("seeder requires pool")
	}
	return &Seeder{pool: pool, now: time.Now}
}

func (s *Seeder) Seed(ctx context.Context, prefix string, params service.SeedParams) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(params.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	now := s.now().UTC()
	if err := s.seedOptions(ctx, tx, prefix, params, now); err != nil {
		return err
	}
	adminID, err := s.seedAdmin(ctx, tx, prefix, params, string(hash), now)
	if err != nil {
		return err
	}
	if err := s.seedContent(ctx, tx, prefix, adminID, now); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return nil
}

func (s *Seeder) seedOptions(ctx context.Context, tx pgx.Tx, prefix string, params service.SeedParams, now time.Time) error {
	options := [][2]string{
		{"siteurl", params.BaseURL},
		{"home", params.BaseURL},
		{"blogname", params.Title},
		{"blogdescription", ""},
		{"admin_email", params.AdminEmail},
		{"default_category", "1"},
		{"posts_per_page", "10"},
		{"date_format", "2006-01-02"},
		{"site_created_at", now.Format(time.RFC3339)},
	}

	query := fmt.Sprintf(`INSERT INTO %s (option_name, option_value)
		VALUES ($1, $2)
		ON CONFLICT (option_name) DO NOTHING`, schema.TableName(prefix, "options"))
	for _, opt := range options {
		if _, err := tx.Exec(ctx, query, opt[0], opt[1]); err != nil {
			return fmt.Errorf("seed option %s: %w", opt[0], err)
		}
	}
	return nil
}

func (s *Seeder) seedAdmin(ctx context.Context, tx pgx.Tx, prefix string, params service.SeedParams, passwordHash string, now time.Time) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %s
		(user_login, user_pass, user_email, user_registered, display_name)
		VALUES ($1, $2, $3, $4, $1)
		ON CONFLICT (user_login) DO UPDATE SET user_login = EXCLUDED.user_login
		RETURNING id`, schema.TableName(prefix, "users"))

	var adminID int64
	if err := tx.QueryRow(ctx, query,
		params.AdminUsername, passwordHash, params.AdminEmail, now).Scan(&adminID); err != nil {
		return 0, fmt.Errorf("seed admin user: %w", err)
	}

	metaQuery := fmt.Sprintf(`INSERT INTO %s (user_id, meta_key, meta_value)
		VALUES ($1, $2, $3)`, schema.TableName(prefix, "usermeta"))
	if _, err := tx.Exec(ctx, metaQuery, adminID, "role", "administrator"); err != nil {
		return 0, fmt.Errorf("seed admin role: %w", err)
	}
	return adminID, nil
}

func (s *Seeder) seedContent(ctx context.Context, tx pgx.Tx, prefix string, adminID int64, now time.Time) error {
	var termID int64
	termQuery := fmt.Sprintf(`INSERT INTO %s (name, slug) VALUES ($1, $2)
		RETURNING term_id`, schema.TableName(prefix, "terms"))
	if err := tx.QueryRow(ctx, termQuery, "Uncategorized", "uncategorized").Scan(&termID); err != nil {
		return fmt.Errorf("seed default term: %w", err)
	}

	var taxonomyID int64
	taxQuery := fmt.Sprintf(`INSERT INTO %s (term_id, taxonomy, count)
		VALUES ($1, 'category', 1)
		RETURNING term_taxonomy_id`, schema.TableName(prefix, "term_taxonomy"))
	if err := tx.QueryRow(ctx, taxQuery, termID).Scan(&taxonomyID); err != nil {
		return fmt.Errorf("seed default taxonomy: %w", err)
	}

	var postID int64
	postQuery := fmt.Sprintf(`INSERT INTO %s
		(post_author, post_date, post_content, post_title, post_status, post_name, post_modified, post_type)
		VALUES ($1, $2, $3, $4, 'publish', $5, $2, 'post')
		RETURNING id`, schema.TableName(prefix, "posts"))
	if err := tx.QueryRow(ctx, postQuery,
		adminID, now,
		"Welcome to your new site. Edit or delete this post to get started.",
		"Hello World", "hello-world").Scan(&postID); err != nil {
		return fmt.Errorf("seed sample post: %w", err)
	}

	relQuery := fmt.Sprintf(`INSERT INTO %s (object_id, term_taxonomy_id)
		VALUES ($1, $2)`, schema.TableName(prefix, "term_relationships"))
	if _, err := tx.Exec(ctx, relQuery, postID, taxonomyID); err != nil {
		return fmt.Errorf("seed post category: %w", err)
	}
	return nil
}

var _ service.Seeder = (*Seeder)(nil)
