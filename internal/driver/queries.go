package driver

const (
	SaveConceptQuery = `
		MERGE (c:Concept {name_key: $name_key, scope: $scope})
		ON CREATE SET c.uuid = $uuid, c.created_at = $created_at
		SET c.name = $name,
			c.definitions = $definitions,
			c.name_embedding = $name_embedding
		RETURN c.uuid AS uuid
	`

	ListConceptsQuery = `
		MATCH (c:Concept {scope: $scope})
		RETURN c.name AS name
		ORDER BY c.name
	`

	GetDefinitionsQuery = `
		MATCH (c:Concept {scope: $scope})
		WHERE c.name_key IN $name_keys
		RETURN c.name AS name, c.definitions AS definitions
	`
)
