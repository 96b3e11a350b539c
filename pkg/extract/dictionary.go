package extract

import (
	"regexp"

	"github.com/atlaskb/backend/pkg/common"
)

// DictionaryEntry is one curated entity with the surface patterns that match
// it. Patterns run against lowercased text; matching is deterministic and
// needs no model call.
type DictionaryEntry struct {
	Name     string
	Type     common.EntityType
	Aliases  []string
	patterns []*regexp.Regexp
}

func entry(name string, typ common.EntityType, aliases []string, patterns ...string) DictionaryEntry {
	e := DictionaryEntry{Name: name, Type: typ, Aliases: aliases}
	for _, p := range patterns {
		e.patterns = append(e.patterns, regexp.MustCompile(p))
	}
	return e
}

// Dictionary is the curated entity list seeding pattern extraction. Entries
// are high precision on purpose; recall comes from the model pass. When two
// entries match overlapping text the longer match wins, so "Claude Code"
// suppresses a bare "Claude" at the same position.
var Dictionary = []DictionaryEntry{
	// Tools
	entry("Claude Code", common.EntityTypeTool, []string{"ClaudeCode"}, `\bclaude\s*code\b`),
	entry("Claude", common.EntityTypeTool, nil, `\bclaude\b`),
	entry("Cursor", common.EntityTypeTool, []string{"Cursor AI"}, `\bcursor(\.ai|\s+ai)?\b`),
	entry("Windsurf", common.EntityTypeTool, nil, `\bwindsurf\b`),
	entry("GitHub Copilot", common.EntityTypeTool, []string{"Copilot"}, `\b(github\s*)?copilot\b`),
	entry("Devin", common.EntityTypeTool, nil, `\bdevin\b`),
	entry("Lovable", common.EntityTypeTool, []string{"lovable.dev"}, `\blovable(\.dev)?\b`),
	entry("Bolt", common.EntityTypeTool, []string{"bolt.new"}, `\bbolt(\.|\s+)new\b`),
	entry("v0", common.EntityTypeTool, []string{"v0.dev"}, `\bv0(\.dev)?\b`),
	entry("Replit", common.EntityTypeTool, nil, `\breplit\b`),
	entry("ChatGPT", common.EntityTypeTool, nil, `\bchatgpt\b`),
	entry("GPT-4", common.EntityTypeTool, []string{"GPT4"}, `\bgpt-?4\b`),
	entry("GPT-4o", common.EntityTypeTool, nil, `\bgpt-?4o\b`),
	entry("Gemini", common.EntityTypeTool, nil, `\bgemini\b`),
	entry("Perplexity", common.EntityTypeTool, nil, `\bperplexity\b`),
	entry("NotebookLM", common.EntityTypeTool, []string{"Notebook LM"}, `\bnotebook\s*lm\b`),
	entry("Midjourney", common.EntityTypeTool, nil, `\bmidjourney\b`),
	entry("DALL-E", common.EntityTypeTool, []string{"DALLE"}, `\bdall-?e\b`),
	entry("Stable Diffusion", common.EntityTypeTool, nil, `\bstable\s*diffusion\b`),
	entry("DeepSeek", common.EntityTypeTool, nil, `\bdeepseek\b`),
	entry("Qwen", common.EntityTypeTool, nil, `\bqwen\b`),

	// Companies
	entry("Anthropic", common.EntityTypeCompany, nil, `\banthropic\b`),
	entry("OpenAI", common.EntityTypeCompany, nil, `\bopenai\b`),
	entry("Google", common.EntityTypeCompany, nil, `\bgoogle\b`),
	entry("Microsoft", common.EntityTypeCompany, nil, `\bmicrosoft\b`),
	entry("Meta", common.EntityTypeCompany, nil, `\bmeta\b`),
	entry("Amazon", common.EntityTypeCompany, nil, `\bamazon\b`),
	entry("NVIDIA", common.EntityTypeCompany, nil, `\bnvidia\b`),
	entry("Cognition", common.EntityTypeCompany, nil, `\bcognition\b`),
	entry("Codeium", common.EntityTypeCompany, nil, `\bcodeium\b`),
	entry("Vercel", common.EntityTypeCompany, nil, `\bvercel\b`),
	entry("StackBlitz", common.EntityTypeCompany, nil, `\bstackblitz\b`),

	// Concepts
	entry("MCP", common.EntityTypeConcept, []string{"Model Context Protocol"}, `\bmcp\b`, `\bmodel\s*context\s*protocol\b`),
	entry("RAG", common.EntityTypeConcept, []string{"Retrieval Augmented Generation"}, `\brag\b`, `\bretrieval[\s-]*augmented\b`),
	entry("Vibe Coding", common.EntityTypeConcept, []string{"vibecoding"}, `\bvibe[\s-]*coding\b`),
	entry("Prompt Engineering", common.EntityTypeConcept, nil, `\bprompt\s*engineering\b`),
	entry("Fine-tuning", common.EntityTypeConcept, []string{"finetuning"}, `\bfine[\s-]*tuning\b`),
	entry("Embeddings", common.EntityTypeConcept, nil, `\bembeddings?\b`),
	entry("Vector Database", common.EntityTypeConcept, nil, `\bvector\s*(database|db|store)\b`),
	entry("AI Agents", common.EntityTypeConcept, []string{"Agentic AI"}, `\bai\s*agents?\b`, `\bagentic\s*ai\b`),
	entry("Chain of Thought", common.EntityTypeConcept, nil, `\bchain[\s-]*of[\s-]*thought\b`),
	entry("Few-shot Learning", common.EntityTypeConcept, nil, `\bfew[\s-]*shot\b`),
	entry("Context Window", common.EntityTypeConcept, nil, `\bcontext\s*window\b`),
}
