// Package backend defines the reasoning-backend boundary: one typed
// request/response contract per pipeline stage, the Backend interface the
// pipeline drives, and a deterministic MockBackend for tests and local
// runs. Provider adapters live in the subpackages (anthropic, openai).
//
// Every failure crossing this boundary is a *core.BackendError with a
// distinguishable kind (timeout, malformed, unavailable); no SDK error
// type leaks past it.
package backend
