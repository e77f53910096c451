package builder

import (
	"context"
	"fmt"
	"strings"
)

// BaseURLSigner resolves media keys against the platform CDN base URL.
// The real signing service lives elsewhere; deployments that serve public
// avatars use this resolver directly.
type BaseURLSigner struct {
	BaseURL string
}

// SignedURL joins the base URL and key.
func (s *BaseURLSigner) SignedURL(_ context.Context, key string) (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("media base url not configured")
	}
	return strings.TrimSuffix(s.BaseURL, "/") + "/" + strings.TrimPrefix(key, "/"), nil
}
