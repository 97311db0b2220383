package model

import "time"

// Tenant is a registered business. The short numeric-string ID is the key
// for every on-disk path belonging to the tenant. Tenants are not physically
// deleted by the base flows; deletion is an admin-only operation on the same
// collection.
type Tenant struct {
	ID                 string          `json:"id"`
	Name               string          `json:"name"`
	Email              string          `json:"email"`
	SecretHash         string          `json:"secret_hash"`
	SubscriptionExpiry time.Time       `json:"subscription_expiry"`
	Payments           []PaymentRecord `json:"payments"`
}

// SubscriptionActive reports whether the tenant's subscription covers now.
func (t *Tenant) SubscriptionActive(now time.Time) bool {
	return now.Before(t.SubscriptionExpiry)
}

// Clone returns a deep copy of the tenant.
func (t *Tenant) Clone() *Tenant {
	out := *t
	out.Payments = make([]PaymentRecord, len(t.Payments))
	copy(out.Payments, t.Payments)
	return &out
}

// PaymentRecord is one entry in a tenant's ordered payment history.
type PaymentRecord struct {
	ID     string    `json:"id"`
	Amount float64   `json:"amount"`
	Months int       `json:"months"`
	PaidAt time.Time `json:"paid_at"`
}

// TenantConfig holds a tenant's free-form settings (geofence polygon, salary
// rules, notification toggles, branding). Lazily created with defaults on
// first access.
type TenantConfig struct {
	TenantID string         `json:"tenant_id"`
	Settings map[string]any `json:"settings"`
}

// DefaultTenantConfig returns the config a tenant gets on first access.
func DefaultTenantConfig(tenantID string) *TenantConfig {
	return &TenantConfig{
		TenantID: tenantID,
		Settings: map[string]any{},
	}
}

// SystemConfig holds deployment-wide settings.
type SystemConfig struct {
	Settings map[string]any `json:"settings"`
}

// DefaultSystemConfig returns an empty system config.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{Settings: map[string]any{}}
}
