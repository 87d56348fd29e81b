package report

// SanitizeOptions selects which PII fields are stripped before a finding or
// the report meta block is handed to the output writer. Suppression is
// applied identically regardless of output format.
type SanitizeOptions struct {
	// NoUserMeta strips the keys "uid", "gid" and "user" from finding metadata.
	NoUserMeta bool

	// NoCmdlineMeta strips the key "cmdline" from finding metadata.
	NoCmdlineMeta bool

	// NoHostnameMeta strips the hostname from the report meta block.
	NoHostnameMeta bool
}

// userKeys are the metadata keys considered user-identifying.
var userKeys = []string{"uid", "gid", "user"}

// SanitizeMetadata returns a copy of meta with suppressed keys removed.
// Unknown keys are left untouched; the function never fails. A nil or empty
// input yields nil.
func SanitizeMetadata(meta map[string]string, opts SanitizeOptions) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	if opts.NoUserMeta {
		for _, k := range userKeys {
			delete(out, k)
		}
	}
	if opts.NoCmdlineMeta {
		delete(out, "cmdline")
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// SanitizeMeta returns a copy of the report meta block with suppressed
// fields cleared.
func SanitizeMeta(meta Meta, opts SanitizeOptions) Meta {
	if opts.NoHostnameMeta {
		meta.Hostname = ""
	}
	return meta
}
