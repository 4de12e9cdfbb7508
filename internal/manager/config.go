package manager

import (
	"time"

	"visionchat/internal/inference"
	"visionchat/internal/prompt"
	"visionchat/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Generator inference.Generator
	Images    ImageSource
	// Model is reported by Status.
	Model         types.ModelInfo
	MaxQueueDepth int
	MaxWait       time.Duration
	// InferTimeout bounds one generation once admitted; zero means none.
	InferTimeout time.Duration
	Formatter    prompt.Formatter
	// Probe, when set, backs Ready with a live backend check.
	Probe func() error
}
