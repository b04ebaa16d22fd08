// Package mcp exposes ragd to MCP clients over stdio.
//
// Tools mirror the HTTP API: rag_query, rag_list_documents,
// rag_toggle_documents, rag_search_documents and rag_ingest_file. There is
// no authenticating proxy in front of a stdio server, so every tool takes
// the acting user id as an argument.
package mcp
