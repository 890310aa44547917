package httpserver

const (
	ErrInvalidJSON   = "invalid json"
	ErrMissingTenant = "missing tenant id"
	ErrMissingFields = "missing required fields"
)
