package models

// FaqItem is a tenant-authored question and answer pair.
// PointID is the vector point currently representing the item, empty when unindexed.
type FaqItem struct {
	ID        int64  `json:"id"`
	TenantID  int64  `json:"tenant_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Category  string `json:"category,omitempty"`
	Published bool   `json:"published"`
	PointID   string `json:"point_id,omitempty"`
}

// PolicyItem is a tenant policy text (returns, shipping, privacy...).
type PolicyItem struct {
	ID         int64  `json:"id"`
	TenantID   int64  `json:"tenant_id"`
	Title      string `json:"title"`
	PolicyType string `json:"policy_type"`
	Content    string `json:"content"`
	Published  bool   `json:"published"`
	PointID    string `json:"point_id,omitempty"`
}

// TenantConfig is the per-tenant business context used when answering.
type TenantConfig struct {
	TenantID         int64  `json:"tenant_id"`
	BusinessName     string `json:"business_name"`
	ToneInstructions string `json:"tone_instructions,omitempty"`
	BusinessHours    string `json:"business_hours,omitempty"`
	ContactEmail     string `json:"contact_email,omitempty"`
	ContactPhone     string `json:"contact_phone,omitempty"`
}
