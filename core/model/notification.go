package model

import "time"

// NotificationType classifies notifications for the relay and UI.
type NotificationType string

const (
	NotifyJobCreated        NotificationType = "job_created"
	NotifyDriverStatus      NotificationType = "driver_status"
	NotifyPODSubmitted      NotificationType = "pod_submitted"
	NotifyDeliveryCompleted NotificationType = "delivery_completed"
	NotifyJobStatus         NotificationType = "job_status"
	NotifyJobAssigned       NotificationType = "job_assigned"
)

// Notification is a message produced for a single user.
type Notification struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	JobID     string            `json:"job_id,omitempty"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Type      NotificationType  `json:"type"`
	IsRead    bool              `json:"is_read"`
	Context   map[string]string `json:"context,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Role of a portal user.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDispatcher Role = "dispatcher"
	RoleDriver     Role = "driver"
	RoleCustomer   Role = "customer"
)

// User is the subset of a portal user needed for notification targeting.
type User struct {
	ID                    string   `json:"id"`
	Name                  string   `json:"name"`
	Email                 string   `json:"email"`
	Role                  Role     `json:"role"`
	CustomerID            string   `json:"customer_id,omitempty"`
	AdditionalCustomerIDs []string `json:"additional_customer_ids,omitempty"`
}

// IsDispatcher reports whether the user receives dispatch notifications.
func (u User) IsDispatcher() bool {
	return u.Role == RoleAdmin || u.Role == RoleDispatcher
}

// LinkedTo reports whether the user is linked to the customer directly or
// through the additional customer list.
func (u User) LinkedTo(customerID string) bool {
	if customerID == "" {
		return false
	}
	if u.CustomerID == customerID {
		return true
	}
	for _, id := range u.AdditionalCustomerIDs {
		if id == customerID {
			return true
		}
	}
	return false
}
