package loader

// DefaultCacheKey is the base key derivation shared by Manager
// implementations: a CtxCacheKey override when present, otherwise the
// absolute URL. The result is transformer-agnostic; transformed variants are
// derived by cache.TransformedKey.
func DefaultCacheKey(url string, ctx Context) string {
	if v, ok := ctx[CtxCacheKey]; ok {
		if key, ok := v.(string); ok && key != "" {
			return key
		}
	}
	return url
}
