package llm

// Prompt templates for the four workflow calls. Kept as package constants
// so tests can verify formatting without a model in the loop.

// decidePrompt asks for a closed-enum routing decision. The model must
// answer with exactly one token; anything else is treated as RETRIEVE.
const decidePrompt = `You are a routing step in a question-answering system with access to a document database.

Decide whether answering the user's question requires searching the document database.

Reply RETRIEVE if the question asks about facts, documents, or domain knowledge that could be stored in the database.
Reply ANSWER if the question is conversational (greetings, thanks), simple arithmetic, or general knowledge that needs no documents.

%sQuestion: %s

Reply with exactly one word: RETRIEVE or ANSWER.`

// gradePrompt is deliberately lenient: partial relevance is acceptable, and
// only completely unrelated content is graded no.
const gradePrompt = `You are a grader assessing relevance of a retrieved document to a user question.

Here is the retrieved content:

%s

Here is the user question: %s

Grade as 'yes' if ANY of the following are true:
- The content contains keywords related to the question
- The content discusses topics related to the question's domain
- The content provides context that could help answer the question
- The content is from a similar subject area as the question

Only grade as 'no' if the content is completely unrelated or off-topic.
Be lenient - partial relevance is acceptable.
Respond with 'yes' or 'no'.`

// rewritePrompt reformulates the question for better retrieval. The
// conversation is included so pronouns and ellipsis in follow-ups resolve
// into a self-contained query.
const rewritePrompt = `Analyze the following question and rephrase it to make it clearer and more specific for document retrieval, while maintaining the core intent.

%sOriginal question: %s
Current question: %s

Guidelines for rewriting:
- Keep the main topic and intent unchanged
- Resolve pronouns and references using the conversation above, so the question stands alone
- Add synonyms or related terms that might appear in documents
- Make it more general if it's too specific, or add context if it's too vague
- Use common terminology that would appear in formal documents
- Keep it concise (1-2 sentences maximum)

Reply with ONLY the rewritten question.`

// answerGroundedPrompt is used when relevant passages exist.
const answerGroundedPrompt = `Answer this question based ONLY on the context provided below. Be direct and concise (2-4 sentences).

%sQuestion: %s

Context:
%s

Answer:`

// answerDirectPrompt is used when no relevant context was found: the model
// answers best-effort from general knowledge instead of refusing.
const answerDirectPrompt = `Answer the user's question directly and concisely. No relevant documents were found, so answer from general knowledge. If the question needed specific documents, say so briefly and suggest rephrasing.

%sQuestion: %s

Answer:`
