package ai

// ExtractPrompt instructs the model to pull typed entities and explicit
// relationships out of one email. Fill: allowed relation types. The email
// text is passed as the user message.
const ExtractPrompt = `You are an entity extraction assistant for a personal email knowledge base about AI tooling and industry news.

Identify the named entities the email actually discusses.

Entity categories (use exactly one per entity):
- tool: AI products, software, apps, models (e.g. Claude, Cursor, GPT-4)
- company: organizations (e.g. Anthropic, OpenAI, Google)
- concept: technical concepts and methodologies (e.g. RAG, embeddings, fine-tuning)
- person: named individuals

Then identify explicit relationships stated in the text between those
entities. Allowed relation types:
%s

Rules:
- Use the most specific complete name that appears in the text.
- Confidence is between 0 and 1: how certain you are the email genuinely
  discusses this entity rather than mentioning the word in passing.
- Sentiment is between -1 and 1 for the email's tone toward the entity.
- Only report relationships the text states or strongly implies; never invent.
- Skip greetings, signatures, and unsubscribe boilerplate.`

// SynthesisPrompt instructs the model to answer strictly from the provided
// snippets with [Source N] citations. Fills: question, numbered snippets.
const SynthesisPrompt = `Based on the following sources from a personal email knowledge base, answer the user's question.

User Question: %s

Sources:
%s

Instructions:
1. Answer only from the sources above. If they do not contain the answer, say so.
2. Cite sources inline using [Source N] notation for every claim.
3. Be concise but complete.

Answer:`
