package model

// Customer is the subset of a customer record needed to allocate references.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DocketID *int   `json:"customer_docket_id,omitempty"`
}

// CustomerJobCounter tracks the last sequence issued for a customer.
type CustomerJobCounter struct {
	CustomerID   string `json:"customer_id"`
	DocketID     int    `json:"customer_docket_id"`
	LastSequence int    `json:"last_sequence"`
}

// DocketPtr is a helper for building customers in code and tests.
func DocketPtr(d int) *int { return &d }
