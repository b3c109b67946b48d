// Package disposable holds the static denylist of throwaway-mail
// domains. The list is fixed configuration compiled into the binary;
// it is never mutated at runtime.
package disposable

import "strings"

// IsDisposable returns whether the given domain is a known disposable domain.
func IsDisposable(domain string) bool {
	_, ok := disposableSet[strings.ToLower(domain)]
	return ok
}
