// Package rag orchestrates retrieval-augmented response generation.
//
// The orchestrator embeds an incoming query, retrieves tenant-scoped
// knowledge from the vector store, shapes a system prompt from the tenant's
// persona, and calls the text-generation capability. It also owns the
// knowledge-add path used by the ingest workflow.
package rag
