package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/athapong/canvas-mcp/pkg/graph"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Neo4jStore implements GraphStore on a Neo4j database. Every graph is kept
// under its own name so several canvases can share one database.
type Neo4jStore struct {
	driver neo4j.Driver
	uri    string
	name   string
	logger *logrus.Logger
}

// NewNeo4jStore creates a new Neo4j store for the graph called name
func NewNeo4jStore(uri, username, password, name string) (*Neo4jStore, error) {
	auth := neo4j.BasicAuth(username, password, "")
	driver, err := neo4j.NewDriver(uri, auth)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Neo4jStore{
		driver: driver,
		uri:    uri,
		name:   name,
		logger: logger,
	}, nil
}

// Named returns a store for another graph that shares this store's driver.
// Close only the original.
func (s *Neo4jStore) Named(name string) *Neo4jStore {
	c := *s
	c.name = name
	return &c
}

// Connect verifies the database is reachable
func (s *Neo4jStore) Connect(ctx context.Context) error {
	return errors.Wrapf(s.driver.VerifyConnectivity(), "failed to reach %s", s.uri)
}

// Close releases the driver
func (s *Neo4jStore) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

// StoreGraph replaces the stored graph with g in one transaction
func (s *Neo4jStore) StoreGraph(ctx context.Context, g *graph.GraphData) error {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		if _, err := tx.Run(`
			MATCH (c:Component {graph: $graph})
			DETACH DELETE c
		`, map[string]interface{}{"graph": s.name}); err != nil {
			return nil, err
		}

		for _, node := range g.Nodes {
			props, err := encodeProperties(node.Properties)
			if err != nil {
				return nil, err
			}
			_, err = tx.Run(`
				CREATE (c:Component {
					graph: $graph,
					id: $id,
					label: $label,
					role: $role,
					confidence: $confidence,
					elements: $elements,
					properties: $properties,
					stored_at: datetime()
				})
			`, map[string]interface{}{
				"graph":      s.name,
				"id":         node.ID,
				"label":      node.Label,
				"role":       node.Type,
				"confidence": node.Confidence,
				"elements":   node.Elements,
				"properties": props,
			})
			if err != nil {
				return nil, err
			}
		}

		for _, edge := range g.Edges {
			props, err := encodeProperties(edge.Properties)
			if err != nil {
				return nil, err
			}
			_, err = tx.Run(`
				MATCH (from:Component {graph: $graph, id: $fromID})
				MATCH (to:Component {graph: $graph, id: $toID})
				CREATE (from)-[r:RELATES {
					id: $id,
					type: $type,
					weight: $weight,
					properties: $properties
				}]->(to)
			`, map[string]interface{}{
				"graph":      s.name,
				"id":         edge.ID,
				"type":       edge.Type,
				"fromID":     edge.Source,
				"toID":       edge.Target,
				"weight":     edge.Weight,
				"properties": props,
			})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to store graph %s", s.name)
	}

	s.logger.WithFields(logrus.Fields{
		"graph": s.name,
		"nodes": len(g.Nodes),
		"edges": len(g.Edges),
	}).Info("Stored component graph")
	return nil
}

// LoadGraph reads the stored graph back
func (s *Neo4jStore) LoadGraph(ctx context.Context) (*graph.GraphData, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	data, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		g := &graph.GraphData{
			Nodes:       make([]graph.Node, 0),
			Edges:       make([]graph.Edge, 0),
			GeneratedAt: time.Now(),
		}

		result, err := tx.Run(`
			MATCH (c:Component {graph: $graph})
			RETURN c
		`, map[string]interface{}{"graph": s.name})
		if err != nil {
			return nil, err
		}
		for result.Next() {
			node, ok := result.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			g.Nodes = append(g.Nodes, graph.Node{
				ID:         stringProp(node.Props, "id"),
				Label:      stringProp(node.Props, "label"),
				Type:       stringProp(node.Props, "role"),
				Confidence: floatProp(node.Props, "confidence"),
				Elements:   stringsProp(node.Props, "elements"),
				Properties: decodeProperties(node.Props["properties"]),
			})
		}
		if err := result.Err(); err != nil {
			return nil, err
		}

		result, err = tx.Run(`
			MATCH (from:Component {graph: $graph})-[r:RELATES]->(to:Component {graph: $graph})
			RETURN from.id, to.id, r
		`, map[string]interface{}{"graph": s.name})
		if err != nil {
			return nil, err
		}
		for result.Next() {
			values := result.Record().Values
			rel, ok := values[2].(neo4j.Relationship)
			if !ok {
				continue
			}
			from, _ := values[0].(string)
			to, _ := values[1].(string)
			g.Edges = append(g.Edges, graph.Edge{
				ID:         stringProp(rel.Props, "id"),
				Source:     from,
				Target:     to,
				Type:       stringProp(rel.Props, "type"),
				Weight:     floatProp(rel.Props, "weight"),
				Properties: decodeProperties(rel.Props["properties"]),
			})
		}
		return g, result.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load graph %s", s.name)
	}

	return data.(*graph.GraphData), nil
}

// Neo4j properties cannot hold maps, so they are kept as a JSON string.
func encodeProperties(props map[string]interface{}) (string, error) {
	if len(props) == 0 {
		return "", nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode properties")
	}
	return string(data), nil
}

func decodeProperties(v interface{}) map[string]interface{} {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	var props map[string]interface{}
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil
	}
	return props
}

func stringProp(props map[string]interface{}, key string) string {
	s, _ := props[key].(string)
	return s
}

func floatProp(props map[string]interface{}, key string) float64 {
	switch n := props[key].(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

func stringsProp(props map[string]interface{}, key string) []string {
	list, _ := props[key].([]interface{})
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
