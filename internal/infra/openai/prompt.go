package openai

import (
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

const searchToolName = "search_documents"

const searchToolDescription = "Search through company documents to find relevant information. " +
	"Use this when the user asks about company policies, product information, technical documentation, " +
	"FAQs, or any topic that might be covered in internal documents."

const classificationSystemPrompt = `You are an intelligent AI assistant that helps users by either answering questions directly or searching through company documents.

You have access to a tool called 'search_documents' that can search through company documents including:
- Company policies and guidelines
- Product information and FAQs
- Technical documentation
- HR policies and procedures

DECISION CRITERIA:
1. Use 'search_documents' tool when the user asks about:
   - Company-specific policies (remote work, leave, benefits, etc.)
   - Product details, features, or specifications
   - Technical procedures or documentation
   - FAQs or common questions about the company/products
   - Any topic that would be in internal company documents

2. Answer DIRECTLY without using tools when:
   - The user asks general knowledge questions not related to company documents
   - The user asks for explanations of general concepts
   - The user makes casual conversation or greetings
   - The question is about common knowledge that doesn't require document lookup

Always be helpful and provide clear, accurate responses.`

// searchDocumentsTool は分類呼び出しに提示する検索ツールの定義を返す
func searchDocumentsTool() openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        searchToolName,
		Description: openai.String(searchToolDescription),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find relevant documents",
				},
			},
			"required": []string{"query"},
		},
	})
}
