package middleware

import "github.com/stepflow-dev/stepflow/pkg/ports"

// Middleware allows wrapping a ProgressStore to add behavior.
type Middleware func(ports.ProgressStore) ports.ProgressStore
