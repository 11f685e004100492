package answer

import (
	"fmt"
	"strings"

	"github.com/jinford/rag-agent/internal/core/document"
)

const directSystemPrompt = "You are a helpful AI assistant. Provide clear, accurate, and helpful responses."

const noDocumentsSystemPrompt = "You are a helpful AI assistant. " +
	"A document search was performed for the user's question but no relevant documents were found. " +
	"Tell the user that you couldn't find relevant information in the documents, " +
	"and suggest rephrasing the question or asking about a different topic."

// BuildRAGPrompt は検索されたチャンクを含む回答生成用のシステムプロンプトを構築する
func BuildRAGPrompt(query string, results []document.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("You are a helpful AI assistant. Use the following retrieved context to answer the user's question.\n\n")

	sb.WriteString("RETRIEVED CONTEXT:\n")
	sb.WriteString(formatContext(results))
	sb.WriteString("\n\n")

	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("1. Answer based primarily on the provided context\n")
	sb.WriteString("2. If the context doesn't fully answer the question, acknowledge what you found and what's missing\n")
	sb.WriteString("3. Be concise but comprehensive\n")
	sb.WriteString("4. Cite the source documents when providing information\n")
	sb.WriteString("5. If the context is empty or irrelevant, say you couldn't find relevant information in the documents\n\n")

	sb.WriteString("USER QUESTION: ")
	sb.WriteString(query)

	return sb.String()
}

// formatContext は各チャンクを参照元ドキュメント名付きで整形する
func formatContext(results []document.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("[From %s]:\n%s", r.Chunk.DocumentName, r.Chunk.Content))
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// sourceNames は結果に含まれるドキュメント名を出現順・重複なしで返す
func sourceNames(results []document.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	sources := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Chunk.DocumentName]; ok {
			continue
		}
		seen[r.Chunk.DocumentName] = struct{}{}
		sources = append(sources, r.Chunk.DocumentName)
	}
	return sources
}
