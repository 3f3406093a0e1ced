package parser

// Result is the structured outcome of parsing a model response. Query is
// never empty.
type Result struct {
	Query       string   `json:"sparql_query"`
	Entities    []string `json:"entities_used"`
	Relations   []string `json:"relations_used"`
	Explanation string   `json:"explanation"`

	// Parsed is true only when the response was a well-formed JSON envelope.
	Parsed bool `json:"parsed"`
	// Strategy names the extraction strategy that produced the query.
	Strategy string `json:"strategy"`

	AutoCorrected bool     `json:"auto_corrected"`
	Corrections   []string `json:"corrections,omitempty"`
}

// Degraded reports whether the query was recovered by a non-JSON strategy.
func (r Result) Degraded() bool {
	return !r.Parsed
}

func (r *Result) normalize() {
	if r.Entities == nil {
		r.Entities = []string{}
	}
	if r.Relations == nil {
		r.Relations = []string{}
	}
}
