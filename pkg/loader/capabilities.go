package loader

// AsOptionsProcessor returns the manager as an OptionsProcessor if it can
// rewrite request contexts, otherwise nil.
//
// Usage:
//
//	if proc := loader.AsOptionsProcessor(mgr); proc != nil {
//	    ctx = proc.ProcessOptions(url, opts, ctx)
//	}
func AsOptionsProcessor(m Manager) OptionsProcessor {
	if p, ok := m.(OptionsProcessor); ok {
		return p
	}
	return nil
}
