// Package audit implements the append-only, hash-linked event log. Every
// component that makes a decision appends here. Appends are guarded by an
// optimistic expected-previous-hash check; verification recomputes each
// hash from content, making retroactive modification detectable (tamper
// evidence, not tamper prevention).
package audit
