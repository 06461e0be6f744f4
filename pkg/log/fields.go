package log

// Field names shared by every log line. Actor keys match the gin context keys
// set in pkg/middleware/auth.go so the request logger can copy them.
const (
	FieldService     = "service"
	FieldEnvironment = "env"

	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	FieldUserID   = "user_id"
	FieldUsername = "username"
	FieldConnID   = "conn_id"

	// broadcasts and their cloud recording
	FieldBroadcastID  = "broadcast_id"
	FieldChannel      = "channel"
	FieldResourceID   = "resource_id"
	FieldSID          = "sid"
	FieldAttempt      = "attempt"
	FieldVendorStatus = "vendor_status"
	FieldUploading    = "uploading_status"
	FieldRecordingURL = "recording_url"
	FieldObjectKey    = "key"

	// chat and notifications
	FieldReceiverID = "receiver_id"
	FieldCategory   = "category"

	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
