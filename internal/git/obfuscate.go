package git

import reposyncerrors "reposync.dev/reposync/internal/errors"

// Mask replaces the password part of URLs
const Mask = reposyncerrors.Mask

// ObfuscateURLs masks the password of every URL embedded in s
func ObfuscateURLs(s string) string {
	return reposyncerrors.ObfuscateURLs(s)
}

// ObfuscateArgs returns a copy of args with every embedded password masked
func ObfuscateArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		out[i] = ObfuscateURLs(arg)
	}
	return out
}
