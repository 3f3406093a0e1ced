// Package correct repairs recurring mistakes in generated SPARQL queries with
// two ordered substitution tables: a generic table for formatting problems
// (escaped newlines, trailing terminators) and a schema table for vocabulary
// mistakes specific to one ontology.
package correct
