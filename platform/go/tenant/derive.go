// Package tenant holds the derivation rules shared by every component that
// needs to turn a tenant slug into namespaced artifacts (schema namespace,
// filesystem root, base URL).
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Slugs that can never be claimed by a tenant because they collide with
// platform subdomains or operational endpoints.
var reservedSlugs = map[string]struct{}{
	"www": {}, "api": {}, "admin": {}, "app": {}, "mail": {}, "smtp": {},
	"ftp": {}, "ns1": {}, "ns2": {}, "cdn": {}, "static": {}, "assets": {},
	"status": {}, "help": {}, "support": {}, "billing": {}, "dashboard": {},
	"platform": {}, "internal": {}, "backup": {}, "backups": {},
}

// ErrReservedSlug signals that the slug belongs to the reserved-words list.
var ErrReservedSlug = errors.New("slug is reserved")

// NormalizeSlug trims, lowercases, and validates the tenant slug against the
// canonical pattern and the 3-30 character bound.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if len(normalized) < 3 || len(normalized) > 30 {
		return "", fmt.Errorf("invalid slug %q: must be 3-30 characters", input)
	}
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}
	if _, reserved := reservedSlugs[normalized]; reserved {
		return "", ErrReservedSlug
	}

	return normalized, nil
}

// ToSnake converts a kebab-case slug into snake_case for schema namespaces.
func ToSnake(slug string) string {
	return strings.ReplaceAll(strings.ToLower(slug), "-", "_")
}

// ShortID returns the first 8 hexadecimal characters of a UUID (without dashes).
func ShortID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	if len(hex) < 8 {
		return hex
	}
	return hex[:8]
}

// BuildNamespacePrefix derives the base schema namespace for a slug. The
// namespace registry appends a ShortID suffix when this base collided with a
// historical namespace; the base form stays deterministic so retried
// provisioning attempts converge on the same name.
func BuildNamespacePrefix(slug string) string {
	return "tenant_" + ToSnake(slug)
}

// SuffixNamespace disambiguates a namespace prefix against a historical
// collision by appending a tenant-unique short id.
func SuffixNamespace(prefix string, id uuid.UUID) string {
	return prefix + "_" + ShortID(id)
}

// BuildBaseURL returns the public entry point for a tenant slug.
func BuildBaseURL(protocol, slug, domain string) string {
	return protocol + "://" + slug + "." + domain
}
