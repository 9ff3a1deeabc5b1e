// Package schema owns the shape of a tenant's namespaced table set and
// the config artifact rendered next to it.
package schema

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// tableDefs holds the per-tenant table set. Every definition is rendered
// with the tenant's namespace prefix and is idempotent, so a retried
// provisioning run converges instead of failing.
var tableDefs = []struct {
	Name string
	Body string
}{
	{"options", `(
		option_id BIGSERIAL PRIMARY KEY,
		option_name TEXT NOT NULL UNIQUE,
		option_value TEXT NOT NULL DEFAULT '',
		autoload BOOLEAN NOT NULL DEFAULT TRUE
	)`},
	{"users", `(
		id BIGSERIAL PRIMARY KEY,
		user_login TEXT NOT NULL UNIQUE,
		user_pass TEXT NOT NULL,
		user_email TEXT NOT NULL DEFAULT '',
		user_registered TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		display_name TEXT NOT NULL DEFAULT ''
	)`},
	{"usermeta", `(
		umeta_id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`},
	{"posts", `(
		id BIGSERIAL PRIMARY KEY,
		post_author BIGINT NOT NULL DEFAULT 0,
		post_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		post_content TEXT NOT NULL DEFAULT '',
		post_title TEXT NOT NULL DEFAULT '',
		post_excerpt TEXT NOT NULL DEFAULT '',
		post_status TEXT NOT NULL DEFAULT 'publish',
		post_name TEXT NOT NULL DEFAULT '',
		post_modified TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		post_parent BIGINT NOT NULL DEFAULT 0,
		post_type TEXT NOT NULL DEFAULT 'post',
		comment_count BIGINT NOT NULL DEFAULT 0
	)`},
	{"postmeta", `(
		meta_id BIGSERIAL PRIMARY KEY,
		post_id BIGINT NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`},
	{"terms", `(
		term_id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		slug TEXT NOT NULL DEFAULT '',
		term_group BIGINT NOT NULL DEFAULT 0
	)`},
	{"term_taxonomy", `(
		term_taxonomy_id BIGSERIAL PRIMARY KEY,
		term_id BIGINT NOT NULL DEFAULT 0,
		taxonomy TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		parent BIGINT NOT NULL DEFAULT 0,
		count BIGINT NOT NULL DEFAULT 0
	)`},
	{"term_relationships", `(
		object_id BIGINT NOT NULL DEFAULT 0,
		term_taxonomy_id BIGINT NOT NULL DEFAULT 0,
		term_order INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (object_id, term_taxonomy_id)
	)`},
	{"termmeta", `(
		meta_id BIGSERIAL PRIMARY KEY,
		term_id BIGINT NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`},
	{"comments", `(
		comment_id BIGSERIAL PRIMARY KEY,
		comment_post_id BIGINT NOT NULL DEFAULT 0,
		comment_author TEXT NOT NULL DEFAULT '',
		comment_author_email TEXT NOT NULL DEFAULT '',
		comment_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		comment_content TEXT NOT NULL DEFAULT '',
		comment_approved TEXT NOT NULL DEFAULT '1',
		comment_parent BIGINT NOT NULL DEFAULT 0,
		user_id BIGINT NOT NULL DEFAULT 0
	)`},
	{"commentmeta", `(
		meta_id BIGSERIAL PRIMARY KEY,
		comment_id BIGINT NOT NULL DEFAULT 0,
		meta_key TEXT,
		meta_value TEXT
	)`},
	{"links", `(
		link_id BIGSERIAL PRIMARY KEY,
		link_url TEXT NOT NULL DEFAULT '',
		link_name TEXT NOT NULL DEFAULT '',
		link_description TEXT NOT NULL DEFAULT '',
		link_visible TEXT NOT NULL DEFAULT 'Y'
	)`},
}

// TableNames returns the unprefixed table names in creation order.
func TableNames() []string {
	names := make([]string, len(tableDefs))
	for i, def := range tableDefs {
		names[i] = def.Name
	}
	return names
}

// TableName renders the prefixed, quoted identifier for one tenant table.
func TableName(prefix, table string) string {
	return pgx.Identifier{prefix + "_" + table}.Sanitize()
}

// Statements renders the CREATE TABLE statements for a tenant namespace.
func Statements(prefix string) []string {
	out := make([]string, len(tableDefs))
	for i, def := range tableDefs {
		out[i] = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", TableName(prefix, def.Name), def.Body)
	}
	return out
}

// DropStatements renders the teardown statements in reverse creation
// order so dependents go first.
func DropStatements(prefix string) []string {
	out := make([]string, len(tableDefs))
	for i := range tableDefs {
		def := tableDefs[len(tableDefs)-1-i]
		out[i] = fmt.Sprintf("DROP TABLE IF EXISTS %s", TableName(prefix, def.Name))
	}
	return out
}
