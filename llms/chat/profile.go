package chat

// Profile holds the generation settings of one task.
type Profile struct {
	Name         string
	Model        string // empty means the client default
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	JSONMode     bool
}

const (
	querySystemPrompt = "You are an expert in generating SPARQL queries from natural language questions. " +
		"You know RDF, OWL and SPARQL 1.1 well. You respond ONLY with valid JSON, without any text before or after."

	answerSystemPrompt = "You are an assistant that answers questions about a knowledge graph. " +
		"You answer in the language of the question, clearly and concisely, using only the data you are given."
)

// QueryProfile is used for query generation: deterministic and JSON only.
func QueryProfile(model string) Profile {
	return Profile{
		Name:         "query",
		Model:        model,
		Temperature:  0.0,
		MaxTokens:    1500,
		SystemPrompt: querySystemPrompt,
	}
}

// AnswerProfile is used to phrase the final answer.
func AnswerProfile(model string) Profile {
	return Profile{
		Name:         "answer",
		Model:        model,
		Temperature:  0.3,
		MaxTokens:    2000,
		SystemPrompt: answerSystemPrompt,
	}
}
