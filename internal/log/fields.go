package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldUserID     = "user_id"
	FieldYear       = "year"
	FieldMonth      = "month"
)

// Component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentWorker  = "worker"
	ComponentAudit   = "audit"
	ComponentBackend = "backend"
)
