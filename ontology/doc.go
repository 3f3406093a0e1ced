// Package ontology describes the knowledge graph that questions are asked
// against: namespace and prefixes, classes, properties, usage rules and the
// few-shot examples shown to the query generation model.
//
// A descriptor is loaded once, from YAML or from the embedded equestrian
// default, and is then shared read-only:
//
//	desc := ontology.Default()
//	fmt.Println(desc.Render())
package ontology
