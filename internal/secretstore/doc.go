// Package secretstore provides keyed persistent storage for secret material.
//
// Two backends with different deployment tradeoffs are supported:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows
//     Credential Manager, Linux Secret Service)
//   - File: one file per key under a private directory, with atomic writes
//     and secure permissions
//
// A Memory backend exists for tests. The store does not coordinate
// concurrent writers; callers own the serialization of their
// read-modify-write sequences per key.
package secretstore
