package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/chemviz/internal/core"
)

// withRequestMetadata adds the client IP to ctx for upload logging.
// RemoteAddr has already been rewritten by TrustedRealIP.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithIPAddress(ctx, clientIP(r))
}
