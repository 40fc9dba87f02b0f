// Package vault discovers named vault directories under configured roots and
// resolves untrusted vault names to paths that are guaranteed to live under
// one of those roots.
package vault
