// SPDX-License-Identifier: MIT

// Package razer integrates the federated Razer ID identity service used
// for PIN-less pairing with hosts signed into the same account.
package razer

import "sync"

// TokenHolder keeps the signed-in account's pairing JWT and UUID. The
// UI pushes fresh values over the control API; host clients read them
// concurrently.
type TokenHolder struct {
	mu          sync.RWMutex
	token       string
	accountUUID string
}

// Set replaces the stored token material.
func (t *TokenHolder) Set(token, accountUUID string) {
	t.mu.Lock()
	t.token = token
	t.accountUUID = accountUUID
	t.mu.Unlock()
}

// Clear drops the stored token, e.g. on account sign-out.
func (t *TokenHolder) Clear() {
	t.Set("", "")
}

// Token returns the current pairing JWT, empty when signed out.
func (t *TokenHolder) Token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// AccountUUID returns the signed-in account UUID, empty when signed out.
func (t *TokenHolder) AccountUUID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.accountUUID
}

// Available reports whether both token and account UUID are present.
func (t *TokenHolder) Available() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token != "" && t.accountUUID != ""
}
