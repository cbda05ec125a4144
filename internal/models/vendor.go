package models

// VendorAccount is the subscription account of the dashboard vendor.
// Due is the outstanding amount; IsActive nil means the flag was never set.
type VendorAccount struct {
	Credits  float64 `json:"credits"`
	Due      float64 `json:"due"`
	IsActive *bool   `json:"is_active,omitempty"`
}
