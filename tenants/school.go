package tenants

// School represents a tenant organization within the multi-school platform.
// Suspending a school (Active=false) immediately blocks new sessions for it
// without deleting any data.
type School struct {
	ID     string `json:"id"`
	Code   string `json:"code"` // Unique, human-enterable school code
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
