package httpapi

import (
	"context"
)

// serverBaseCtx is canceled by serve on shutdown so in-flight describes stop.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context joined into every
// describe call. nil restores context.Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives from req, so request-scoped values survive, and is
// additionally canceled when base is done. cancel must be called when the
// handler returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
