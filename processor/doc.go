// Package processor ties the pipeline together into one unit of work per
// inbound delivery: fingerprint admission, conversation load, abuse gate,
// the three decision stages, a version-conditional save, an audit-chain
// append and finally the idempotent outbound dispatch. Failures before the
// save withdraw the admission so the queue's redelivery can retry the
// whole unit; failures after it leave the committed decision in place.
package processor
