package fleet

import "errors"

var (
	// ErrConnectionFailed means a worker could not establish its platform
	// session. The supervisor retries on the next reconciliation cycle for
	// as long as the tenant stays desired.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrShutdownTimeout means a worker did not confirm teardown within the
	// stop timeout. The worker is treated as stopped anyway; platform-side
	// cleanup is best-effort.
	ErrShutdownTimeout = errors.New("shutdown timeout")
)
