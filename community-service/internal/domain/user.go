package domain

// User is the slice of a user profile this service depends on.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	NumericUID  uint32 `json:"numeric_uid"`
	DeviceToken string `json:"-"`
}

// DeviceTokenRequest registers a push token for the current user.
type DeviceTokenRequest struct {
	Token string `json:"token" binding:"required,min=8,max=512"`
}

// BlockedUsersResponse lists the ids the current user has blocked.
type BlockedUsersResponse struct {
	BlockedIDs []string `json:"blocked_ids"`
}
