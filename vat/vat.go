// Package vat defines the persistence contract between flowmesh
// services and the capability layer that hosts them.  A Restorer turns
// live objects into sturdy refs and back; a Resolver is the read-only
// face used by components that only ever restore.
package vat

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("sturdy ref not found")

// SturdyRef is an opaque token or URL that can be restored into a live
// capability by the vat that issued it.
type SturdyRef string

// Unsaver revokes a previously saved capability.  Release is one-shot;
// further calls are no-ops.
type Unsaver interface {
	Release(ctx context.Context) error
}

// Restorer persists live capabilities.
type Restorer interface {
	// Save registers cap and returns a sturdy ref that restores it,
	// along with the revocation handle.
	Save(ctx context.Context, cap any, opt ...SaveOption) (SturdyRef, Unsaver, error)

	// Restore returns the live capability for ref, or ErrNotFound.
	Restore(ctx context.Context, ref SturdyRef) (any, error)

	// URL renders ref as a fully-qualified sturdy-ref URL.
	URL(ref SturdyRef) string
}

// Resolver restores sturdy refs issued by any reachable vat.  It is
// the connection-manager face; in-process it is backed by a Table.
type Resolver interface {
	Resolve(ctx context.Context, ref SturdyRef) (any, error)
}

type saveConfig struct {
	token string
}

// SaveOption configures a Save call.
type SaveOption func(*saveConfig)

// WithToken fixes the sturdy-ref token instead of generating one.
func WithToken(token string) SaveOption {
	return func(c *saveConfig) {
		c.token = token
	}
}

// Token strips any URL prefix from ref, leaving the bare token.
func Token(ref SturdyRef) string {
	s := string(ref)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}

	return s
}
