package graph

import "fmt"

const (
	// DefaultChunkLimit caps the chunks fetched per document for graph views.
	DefaultChunkLimit = 50
	// DefaultCommunityDepth caps PARENT_COMMUNITY hops. Community
	// hierarchies are not guaranteed to be acyclic.
	DefaultCommunityDepth = 10
)

const completedDocumentsQuery = `
MATCH (node:Document {status: $status})
RETURN node
`

// graphQueryTemplate builds the document subgraph in stages: documents,
// their chunks, chunk links inside the selected set, entities that are
// shared with another selected chunk, and the community hierarchy above
// those entities. It is rendered with the chunk limit and community depth.
const graphQueryTemplate = `
MATCH docs = (d:Document)
WHERE d.fileName IN $document_names AND d.status = $status
WITH docs, d
ORDER BY d.createdAt DESC

CALL {
  WITH d
  OPTIONAL MATCH chunks = (d)<-[:PART_OF|FIRST_CHUNK]-(c:Chunk)
  RETURN c, chunks LIMIT %d
}

WITH collect(DISTINCT docs) AS docs,
     collect(DISTINCT chunks) AS chunks,
     collect(DISTINCT c) AS selectedChunks

WITH *,
     [c IN selectedChunks |
       [p = (c)-[:NEXT_CHUNK|SIMILAR]-(other)
       WHERE other IN selectedChunks | p]] AS chunkRels

CALL {
  WITH selectedChunks
  UNWIND selectedChunks AS c
  OPTIONAL MATCH entities = (c:Chunk)-[:HAS_ENTITY]->(e)
  OPTIONAL MATCH entityRels = (e)--(e2:!Chunk)
  WHERE EXISTS {
    (e2)<-[:HAS_ENTITY]-(other) WHERE other IN selectedChunks
  }
  RETURN entities, entityRels, collect(DISTINCT e) AS entity
}

WITH docs, chunks, chunkRels,
     collect(entities) AS entities,
     collect(entityRels) AS entityRels,
     entity

CALL {
  WITH entity
  UNWIND entity AS n
  OPTIONAL MATCH community = (n:__Entity__)-[:IN_COMMUNITY]->(p:__Community__)
  OPTIONAL MATCH parentcommunity = (p)-[:PARENT_COMMUNITY*1..%d]->(p2:__Community__)
  RETURN collect(community) AS communities,
         collect(parentcommunity) AS parentCommunities
}

WITH docs + chunks + reduce(acc = [], r IN chunkRels | acc + r)
     + entities + entityRels + communities + parentCommunities AS paths

CALL {
  WITH paths
  UNWIND paths AS path
  UNWIND nodes(path) AS node
  WITH DISTINCT node
  RETURN collect(node) AS nodes
}

CALL {
  WITH paths
  UNWIND paths AS path
  UNWIND relationships(path) AS rel
  RETURN collect(DISTINCT rel) AS rels
}

RETURN nodes, rels
`

// GraphQuery renders the document subgraph query. Non-positive limits fall
// back to the package defaults.
func GraphQuery(chunkLimit, communityDepth int) string {
	if chunkLimit <= 0 {
		chunkLimit = DefaultChunkLimit
	}
	if communityDepth <= 0 {
		communityDepth = DefaultCommunityDepth
	}
	return fmt.Sprintf(graphQueryTemplate, chunkLimit, communityDepth)
}
