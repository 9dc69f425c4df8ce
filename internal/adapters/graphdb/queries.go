package graphdb

// Cypher statements for the Bolt-backed store. Node and relationship
// timestamps are RFC3339Nano strings so lexical comparison matches
// chronological order; nested maps travel as JSON strings because Bolt
// properties are flat.
const (
	createEntityQuery = `
		CREATE (n:Entity {
			id: $id,
			kind: $kind,
			first_seen: $first_seen,
			created_at: $created_at,
			last_updated: $last_updated,
			attributes_json: $attributes_json,
			version: $version
		})
	`

	updateEntityQuery = `
		MATCH (n:Entity {id: $id})
		WHERE n.version = $expected_version
		SET n.first_seen = $first_seen,
			n.last_updated = $last_updated,
			n.attributes_json = $attributes_json,
			n.version = $expected_version + 1
		RETURN n.id AS id
	`

	getEntityQuery = `
		MATCH (n:Entity {id: $id})
		RETURN n.id AS id, n.kind AS kind, n.first_seen AS first_seen,
			n.created_at AS created_at, n.last_updated AS last_updated,
			n.attributes_json AS attributes_json, n.version AS version
	`

	listEntitiesQuery = `
		MATCH (n:Entity)
		WHERE $kind = '' OR n.kind = $kind
		RETURN n.id AS id, n.kind AS kind, n.first_seen AS first_seen,
			n.created_at AS created_at, n.last_updated AS last_updated,
			n.attributes_json AS attributes_json, n.version AS version
		ORDER BY n.id
	`

	createFactQuery = `
		CREATE (f:Fact {
			uuid: $uuid,
			subject: $subject,
			relation: $relation,
			object: $object,
			value_json: $value_json,
			valid_from: $valid_from,
			valid_to: $valid_to,
			recorded_at: $recorded_at,
			episode_id: $episode_id,
			partition: $partition,
			offset: $offset
		})
	`

	closeFactQuery = `
		MATCH (f:Fact {uuid: $uuid})
		SET f.valid_to = $valid_to
	`

	openFactsForSubjectRelationQuery = `
		MATCH (f:Fact {subject: $subject, relation: $relation})
		WHERE f.valid_to IS NULL
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	edgeFactsQuery = `
		MATCH (f:Fact {subject: $subject, relation: $relation, object: $object})
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	factsAsOfSystemQuery = `
		MATCH (f:Fact)
		WHERE f.recorded_at <= $as_of
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	factsAsOfBusinessQuery = `
		MATCH (f:Fact)
		WHERE f.valid_from <= $as_of AND (f.valid_to IS NULL OR f.valid_to > $as_of)
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	factsOfEntityQuery = `
		MATCH (f:Fact)
		WHERE (f.subject = $entity_id OR f.object = $entity_id)
			AND f.valid_from < $to
			AND (f.valid_to IS NULL OR f.valid_to > $from)
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	factsFromSubjectQuery = `
		MATCH (f:Fact {subject: $subject})
		RETURN ` + factColumns + `
		ORDER BY f.valid_from, f.uuid
	`

	factColumns = `f.uuid AS uuid, f.subject AS subject, f.relation AS relation,
			f.object AS object, f.value_json AS value_json,
			f.valid_from AS valid_from, f.valid_to AS valid_to,
			f.recorded_at AS recorded_at, f.episode_id AS episode_id,
			f.partition AS partition, f.offset AS offset`

	episodeExistsQuery = `
		MATCH (e:Episode {id: $id})
		RETURN e.id AS id
	`

	createEpisodeQuery = `
		CREATE (e:Episode {
			id: $id,
			type: $type,
			occurred_at: $occurred_at,
			recorded_at: $recorded_at,
			payload_json: $payload_json,
			partition: $partition,
			offset: $offset,
			involved: $involved
		})
	`

	episodesInWindowQuery = `
		MATCH (e:Episode)
		WHERE e.occurred_at >= $from AND e.occurred_at < $to
			AND ($entity_id = '' OR $entity_id IN e.involved)
		RETURN e.id AS id, e.type AS type, e.occurred_at AS occurred_at,
			e.recorded_at AS recorded_at, e.payload_json AS payload_json,
			e.partition AS partition, e.offset AS offset
		ORDER BY e.occurred_at, e.id
	`

	statsQuery = `
		OPTIONAL MATCH (n:Entity)
		WITH count(n) AS entities
		OPTIONAL MATCH (f:Fact)
		WITH entities, count(f) AS facts,
			count(CASE WHEN f.valid_to IS NOT NULL THEN 1 END) AS closed
		OPTIONAL MATCH (e:Episode)
		RETURN entities, facts, closed, count(e) AS episodes
	`
)

// indexQueries bootstrap lookup indices. Creation is idempotent.
var indexQueries = []string{
	"CREATE INDEX entity_id IF NOT EXISTS FOR (n:Entity) ON (n.id)",
	"CREATE INDEX entity_kind IF NOT EXISTS FOR (n:Entity) ON (n.kind)",
	"CREATE INDEX fact_subject IF NOT EXISTS FOR (f:Fact) ON (f.subject)",
	"CREATE INDEX fact_object IF NOT EXISTS FOR (f:Fact) ON (f.object)",
	"CREATE INDEX fact_edge IF NOT EXISTS FOR (f:Fact) ON (f.subject, f.relation, f.object)",
	"CREATE INDEX episode_id IF NOT EXISTS FOR (e:Episode) ON (e.id)",
	"CREATE INDEX episode_occurred IF NOT EXISTS FOR (e:Episode) ON (e.occurred_at)",
}
