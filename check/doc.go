// Package check contains the verification stages for verimail: the
// structural syntax filter, the disposable-domain classifier, the
// domain deliverability probe and the mailbox existence probe. Each
// stage can be used directly, but the recommended approach is the
// Verifier from the github.com/optimode/verimail package, which adds
// caching, batching and concurrency control on top.
package check
