// Package queue implements the support message pipeline's producer and
// consumer over an at-least-once queue transport.
//
// The producer validates messages and enqueues them wrapped in an envelope
// with a retry counter. The consumer processes delivered envelopes
// independently through the RAG pipeline, retrying failures by resubmitting
// a fresh envelope with an incremented counter and dead-lettering after the
// retry ceiling. Every delivery is completed exactly once: a processed
// envelope is acked whether it succeeded, was resubmitted, or was
// dead-lettered.
package queue
