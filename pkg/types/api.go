package types

// Credentials is the body of POST /auth/register and POST /auth/login.
type Credentials struct {
	// example: alice
	Username string `json:"username" example:"alice"`
	// example: s3cret
	Password string `json:"password" example:"s3cret"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	// example: User created successfully
	Message string `json:"message" example:"User created successfully"`
}

// LoginResponse is returned by a successful POST /auth/login.
type LoginResponse struct {
	// example: Login successful
	Message string `json:"message" example:"Login successful"`
	// Opaque bearer token for authenticated endpoints.
	// example: 1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed
	Token string `json:"token" example:"1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed"`
}

// MeResponse identifies the caller of GET /auth/me.
type MeResponse struct {
	// example: alice
	Username string `json:"username" example:"alice"`
}

// DescribeRequest is the body of POST /api/describe. At most one of
// ImageURL and ImageBase64 may be set; neither means a text-only turn.
type DescribeRequest struct {
	// Text of the turn.
	// example: What is in this picture?
	Prompt string `json:"prompt" example:"What is in this picture?"`
	// http(s) URL of the image. Local paths are rejected.
	// example: https://upload.wikimedia.org/wikipedia/commons/3/3a/Cat03.jpg
	ImageURL string `json:"image_url,omitempty" example:"https://upload.wikimedia.org/wikipedia/commons/3/3a/Cat03.jpg"`
	// Base64 image bytes, optionally as a data: URL.
	ImageBase64 string `json:"image_base64,omitempty"`
}

// DescribeResponse is the generated answer.
type DescribeResponse struct {
	// example: A cat sitting on a windowsill.
	Response string `json:"response" example:"A cat sitting on a windowsill."`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// Machine readable kind when known.
	// example: fetch-error
	Kind string `json:"kind,omitempty" example:"fetch-error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// QueueStatus summarizes admission for the shared model.
type QueueStatus struct {
	// Requests holding a queue slot, including the one generating.
	// example: 1
	QueueLen int `json:"queue_len" example:"1"`
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// example: 30
	MaxWaitSeconds int `json:"max_wait_seconds" example:"30"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	// Overall manager state (ready, draining, error).
	// example: ready
	State string      `json:"state" example:"ready"`
	Model ModelInfo   `json:"model"`
	Queue QueueStatus `json:"queue"`
	// example: 42
	RequestsTotal uint64 `json:"requests_total" example:"42"`
	// example: 3
	FailuresTotal uint64 `json:"failures_total" example:"3"`
	// Requests turned away with 429.
	// example: 1
	RejectedTotal uint64 `json:"rejected_total" example:"1"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
