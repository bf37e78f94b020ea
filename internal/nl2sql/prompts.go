package nl2sql

const (
	FieldSchema      = "schema"
	FieldChatHistory = "chat_history"
	FieldQuestion    = "question"
	FieldQuery       = "query"
	FieldResponse    = "response"
)

// SQLTemplate asks for exactly one SQL statement. The two worked examples
// bias the model towards bare SQL output.
var SQLTemplate = Template{
	Name: "sql",
	Text: `You are a data analyst at a company. You are interacting with a user who is asking you questions about the company's database.
Based on the table schema below, write a SQL query that would answer the user's question. Take the conversation history into account.

<SCHEMA>{schema}</SCHEMA>

Conversation History: {chat_history}

Write only the SQL query and nothing else. Do not wrap the SQL query in any other text, not even backticks.

For example:
Question: which 3 artists have the most tracks?
SQL Query: SELECT ArtistId, COUNT(*) as track_count FROM Track GROUP BY ArtistId ORDER BY track_count DESC LIMIT 3;
Question: Name 10 artists
SQL Query: SELECT Name FROM Artist LIMIT 10;

Your turn:

Question: {question}
SQL Query:`,
	Fields: []string{FieldSchema, FieldChatHistory, FieldQuestion},
}

// AnswerTemplate turns the query result into a single sentence.
var AnswerTemplate = Template{
	Name: "answer",
	Text: `You are a data analyst at a company. You are interacting with a user who is asking you questions about the company's database.
Based on the table schema below, question, sql query, and sql response, write a natural language response in one concise sentence.

<SCHEMA>{schema}</SCHEMA>

Conversation History: {chat_history}
SQL Query: <SQL>{query}</SQL>
User question: {question}
SQL Response: {response}`,
	Fields: []string{FieldSchema, FieldChatHistory, FieldQuery, FieldQuestion, FieldResponse},
}
