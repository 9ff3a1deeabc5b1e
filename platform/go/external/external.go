// Package external declares the out-of-process collaborators the engine
// depends on and ships default implementations for local and single-node
// deployments. Production setups swap these for real integrations.
package external

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentSignal answers billing questions about a tenant. The engine only
// reads delinquency and requests cancellation; the billing system itself
// is elsewhere.
type PaymentSignal interface {
	// Delinquent reports whether the tenant's subscription is unpaid.
	Delinquent(ctx context.Context, tenantID uuid.UUID) (bool, error)
	// Cancel tears down the tenant's subscription, if any.
	Cancel(ctx context.Context, tenantID uuid.UUID) error
}

// NotificationKind names the outbound messages sweeps may send.
const (
	NotifyUsageWarning  = "usage_warning"
	NotifySuspended     = "suspended"
	NotifyExpiryDeleted = "expiry_deleted"
	NotifyBackupFailed  = "backup_failed"
)

// Notification is one outbound tenant message.
type Notification struct {
	TenantID uuid.UUID
	Email    string
	Kind     string
	Subject  string
	Body     string
}

// Notifier delivers tenant notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// ProxyMode selects what the edge serves for a tenant's hostname.
type ProxyMode string

const (
	ProxyActive      ProxyMode = "active"      // route to the tenant workload
	ProxyPlaceholder ProxyMode = "placeholder" // suspended / unpaid page
	ProxyRemoved     ProxyMode = "removed"     // hostname unbound
)

// ProxyConfigurer updates the edge routing for a tenant slug.
type ProxyConfigurer interface {
	Apply(ctx context.Context, slug string, mode ProxyMode) error
}

// ArchiveStore replicates backup archives off the provisioning host.
type ArchiveStore interface {
	// Store uploads the local file under the given remote name.
	Store(ctx context.Context, localPath, remoteName string) error
	// Remove deletes the replicated copy. Missing objects are not an error.
	Remove(ctx context.Context, remoteName string) error
}

// NoopPayment treats every tenant as paid up and cancellation as done.
// Used when the engine runs without a billing backend.
type NoopPayment struct{}

func (NoopPayment) Delinquent(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (NoopPayment) Cancel(context.Context, uuid.UUID) error             { return nil }

// LogNotifier writes notifications to the structured log instead of
// delivering them. The default until a mail integration is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.Logger.Info("tenant notification",
		zap.String("tenant_id", msg.TenantID.String()),
		zap.String("kind", msg.Kind),
		zap.String("email", msg.Email),
		zap.String("subject", msg.Subject))
	return nil
}

// NoopProxy accepts every routing change without side effects.
type NoopProxy struct{}

func (NoopProxy) Apply(context.Context, string, ProxyMode) error { return nil }

// LogAlerter is the default operator alert channel: a high-severity log
// line that deployment alerting is expected to page on.
type LogAlerter struct {
	Logger *zap.Logger
}

func (a LogAlerter) Alert(_ context.Context, job string, err error) {
	a.Logger.Error("job requires operator attention",
		zap.String("job", job),
		zap.Error(err))
}
