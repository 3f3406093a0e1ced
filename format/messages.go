package format

import "github.com/smallnest/kgqa/synth"

// Messages holds the fixed strings of one language.
type Messages struct {
	NoData       string
	QueryContext string // takes the explanation
	DataFound    string // takes the row count
	Result       string // takes the 1-based row number
}

var catalog = map[synth.Language]Messages{
	synth.French: {
		NoData:       "Aucune donnée trouvée dans le graphe de connaissances.",
		QueryContext: "Contexte de la requête: %s",
		DataFound:    "Données trouvées (%d résultats):",
		Result:       "Résultat %d:",
	},
	synth.English: {
		NoData:       "No data found in the knowledge graph.",
		QueryContext: "Query context: %s",
		DataFound:    "Data found (%d results):",
		Result:       "Result %d:",
	},
}

// MessagesFor returns the strings for lang, falling back to the default
// language.
func MessagesFor(lang synth.Language) Messages {
	if m, ok := catalog[lang]; ok {
		return m
	}
	return catalog[synth.DefaultLanguage]
}

// NoDataMessage returns the fixed text used when a query matched nothing.
func NoDataMessage(lang synth.Language) string {
	return MessagesFor(lang).NoData
}
