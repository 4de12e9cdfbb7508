package types

// ModelInfo describes the model serving requests.
type ModelInfo struct {
	// Model identifier as configured.
	// example: meta-llama/Llama-3.2-11B-Vision-Instruct
	ID string `json:"id" example:"meta-llama/Llama-3.2-11B-Vision-Instruct"`
	// Backend name: llamaserver, openai or llama.
	// example: llamaserver
	Backend string `json:"backend" example:"llamaserver"`
	// Selected device and precision.
	// example: cuda/fp16
	Device string `json:"device" example:"cuda/fp16"`
	// example: 500
	MaxNewTokens int `json:"max_new_tokens" example:"500"`
}
