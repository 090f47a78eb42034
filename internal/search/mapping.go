package search

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
)

// buildIndexMapping creates the Bleve mapping for tag documents.
// Slugs and words are single keyword terms, so prefix queries match on
// the raw lowercase text without stemming.
func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()

	slugFieldMapping := bleve.NewTextFieldMapping()
	slugFieldMapping.Analyzer = keyword.Name
	slugFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("slug", slugFieldMapping)

	wordsFieldMapping := bleve.NewTextFieldMapping()
	wordsFieldMapping.Analyzer = keyword.Name
	wordsFieldMapping.Store = false
	docMapping.AddFieldMappingsAt("words", wordsFieldMapping)

	countFieldMapping := bleve.NewNumericFieldMapping()
	countFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("shelf_count", countFieldMapping)

	indexMapping.DefaultMapping = docMapping

	return indexMapping
}
