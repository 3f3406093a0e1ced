// Package config builds the kgqa configuration.
//
// Values come from, in increasing precedence: built-in defaults, an optional
// YAML file (kgqa.yaml), dotenv files (.env.local then .env) and the process
// environment. The environment variable names are the historical ones:
//
//	LOCAL_LLM_ENDPOINT, LOCAL_LLM_MODEL, SPARQL_LLM_MODEL, ANSWER_LLM_MODEL,
//	LLM_BACKEND, USE_LOCAL_LLM, OPENAI_API_KEY, OPENAI_MODEL, LLM_MAX_TOKENS,
//	GRAPHDB_ENDPOINT, ONTOLOGY_GRAPH, INSTANCES_GRAPH, ONTOLOGY_NAMESPACE,
//	DEFAULT_LANGUAGE, VERBOSE, SHOW_SPARQL, SHOW_CONTEXT, MAX_RETRIES,
//	REQUEST_TIMEOUT, LOG_LEVEL, LOG_FILE, STORE_DRIVER, STORE_DSN
//
// The result is validated once; components receive plain values from it and
// never read the environment themselves.
package config
