package query

import (
	"fmt"
	"strings"

	"github.com/fmulab/graphqa/pkg/common"
	"github.com/fmulab/graphqa/pkg/graph"
)

// Result columns shared by every retrieval template.
const (
	columnTexts         = "texts"
	columnScore         = "score"
	columnSource        = "source"
	columnEntities      = "entities"
	columnRelationships = "relationships"
)

// relationshipsPerBlock caps the relationship lines attached to one block.
const relationshipsPerBlock = 20

const documentFilterClause = `EXISTS { (node)-[:PART_OF]->(d:Document) WHERE d.fileName IN $document_names }`

// Index search stage. Candidates are over-fetched so the document filter
// can still fill top_k.
const vectorSearchTemplate = `
CALL db.index.vector.queryNodes($index_name, $candidate_k, $embedding) YIELD node, score
%s
RETURN elementId(node) AS element_id, score
ORDER BY score DESC
LIMIT $top_k
`

const keywordSearchTemplate = `
CALL db.index.fulltext.queryNodes($keyword_index, $query_text, {limit: $candidate_k}) YIELD node, score
%s
RETURN elementId(node) AS element_id, score
ORDER BY score DESC
LIMIT $top_k
`

// hydrateTemplate puts node and score back in scope for a retrieval query.
const hydrateTemplate = `
UNWIND $hits AS hit
MATCH (node) WHERE elementId(node) = hit.element_id
WITH node, hit.score AS score
ORDER BY score DESC
%s
`

const chunkRetrievalTemplate = `
MATCH (node)-[:PART_OF]->(d:Document {status: $status})
WITH d, collect(%s) AS texts, max(score) AS score
RETURN texts, score,
       coalesce(d.fileName, d.url, 'Unknown') AS source,
       [] AS entities, [] AS relationships
ORDER BY score DESC
`

const entityRetrievalTemplate = `
MATCH (node)<-[:HAS_ENTITY]-(:Chunk)-[:PART_OF]->(d:Document {status: $status})
WITH node, score, collect(DISTINCT d.fileName) AS files
OPTIONAL MATCH (node)-[r]-(other:__Entity__)
WITH node, score, files,
     collect(DISTINCT type(r) + ': ' + other.id)[0..$relationship_limit] AS relationships
RETURN [%s + coalesce(': ' + node.description, '')] AS texts, score,
       coalesce(files[0], 'Unknown') AS source,
       [node.id] AS entities, relationships
ORDER BY score DESC
`

const communityRetrievalTemplate = `
OPTIONAL MATCH (d:Document {status: $status})<-[:PART_OF]-(:Chunk)-[:HAS_ENTITY]->(:__Entity__)
      -[:IN_COMMUNITY]->(:__Community__)-[:PARENT_COMMUNITY*0..%d]->(node)
WITH node, score, collect(DISTINCT d.fileName) AS files
RETURN [%s] AS texts, score,
       coalesce(files[0], 'community:' + coalesce(toString(node.id), elementId(node))) AS source,
       [] AS entities, [] AS relationships
ORDER BY score DESC
`

// chunkHitsTemplate feeds entity expansion with individual chunks.
const chunkHitsTemplate = `
MATCH (node)-[:PART_OF]->(d:Document {status: $status})
RETURN elementId(node) AS element_id, %s AS text, score,
       coalesce(d.fileName, d.url, 'Unknown') AS source
ORDER BY score DESC
`

const chunkEntitiesQuery = `
UNWIND $chunk_ids AS chunk_id
MATCH (c:Chunk)-[:HAS_ENTITY]->(e:__Entity__)
WHERE elementId(c) = chunk_id
WITH e, collect(DISTINCT chunk_id) AS chunk_ids
RETURN elementId(e) AS element_id,
       coalesce(e.id, e.name, elementId(e)) AS id,
       e.embedding AS embedding,
       chunk_ids
ORDER BY size(chunk_ids) DESC, id ASC
LIMIT $entity_limit
`

// entityExpansionTemplate is rendered with the hop depth and the path cap.
const entityExpansionTemplate = `
UNWIND $entity_ids AS entity_id
MATCH (e) WHERE elementId(e) = entity_id
CALL {
  WITH e
  MATCH path = (e)-[rels*1..%d]-(:!Chunk&!Document&!__Community__)
  WHERE none(r IN rels WHERE type(r) IN ['HAS_ENTITY', 'PART_OF'])
    AND none(x IN nodes(path) WHERE x:Chunk OR x:Document OR x:__Community__)
  RETURN path
  LIMIT %d
}
RETURN elementId(e) AS entity_id, collect(path) AS paths
`

const graphModeQuery = `
MATCH (node:Chunk)-[:PART_OF]->(d:Document {status: $status})
WHERE size($document_names) = 0 OR d.fileName IN $document_names
WITH node, d, size([term IN $terms WHERE toLower(coalesce(node.text, '')) CONTAINS term]) AS hits
WHERE hits > 0
WITH node, d, toFloat(hits) / size($terms) AS score
ORDER BY score DESC
LIMIT $top_k
OPTIONAL MATCH (node)-[:HAS_ENTITY]->(e:__Entity__)
OPTIONAL MATCH (e)-[r]-(other:__Entity__)
WITH node, d, score,
     collect(DISTINCT e.id) AS entities,
     collect(DISTINCT type(r) + ': ' + other.id) AS relationships
RETURN [node.text] AS texts, score,
       coalesce(d.fileName, d.url, 'Unknown') AS source,
       entities, relationships[0..$relationship_limit] AS relationships
ORDER BY score DESC
`

// textExpression concatenates the text properties of node into one string.
func textExpression(props []string) string {
	if len(props) == 0 {
		props = []string{"text"}
	}
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, fmt.Sprintf("coalesce(toString(node.`%s`), '')", p))
	}
	return strings.Join(parts, " + ' ' + ")
}

// retrievalQueryFor picks the retrieval template for the plan's node label.
func retrievalQueryFor(p Plan) string {
	text := textExpression(p.TextProperties)
	switch {
	case p.NodeLabel == common.LabelEntity:
		return fmt.Sprintf(entityRetrievalTemplate, text)
	case p.NodeLabel == common.LabelCommunity:
		return fmt.Sprintf(communityRetrievalTemplate, graph.DefaultCommunityDepth, text)
	case p.ExpandEntities:
		return fmt.Sprintf(chunkHitsTemplate, text)
	default:
		return fmt.Sprintf(chunkRetrievalTemplate, text)
	}
}

func whereClause(filter bool) string {
	if !filter {
		return ""
	}
	return "WHERE " + documentFilterClause
}

func vectorSearchQuery(filter bool) string {
	return fmt.Sprintf(vectorSearchTemplate, whereClause(filter))
}

func keywordSearchQuery(filter bool) string {
	return fmt.Sprintf(keywordSearchTemplate, whereClause(filter))
}

func hydrateQuery(retrieval string) string {
	return fmt.Sprintf(hydrateTemplate, retrieval)
}

func entityExpansionQuery(depth, limit int) string {
	return fmt.Sprintf(entityExpansionTemplate, depth, limit)
}

var luceneReplacer = strings.NewReplacer(
	`\`, `\\`, `+`, `\+`, `-`, `\-`, `!`, `\!`, `(`, `\(`, `)`, `\)`,
	`{`, `\{`, `}`, `\}`, `[`, `\[`, `]`, `\]`, `^`, `\^`, `"`, `\"`,
	`~`, `\~`, `*`, `\*`, `?`, `\?`, `:`, `\:`, `/`, `\/`, `&`, `\&`, `|`, `\|`,
)

// EscapeLucene escapes the Lucene query syntax characters in text so user
// input is matched literally by the keyword index. The boolean operators
// AND, OR and NOT are lowercased, which the analyzer treats as plain terms.
func EscapeLucene(text string) string {
	words := strings.Fields(luceneReplacer.Replace(text))
	for i, w := range words {
		switch w {
		case "AND", "OR", "NOT":
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}
