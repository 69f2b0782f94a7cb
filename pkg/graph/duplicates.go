package graph

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/kone-m/karite/pkg/models"
	"github.com/kone-m/karite/pkg/tracing"
)

// DuplicateService maintains the DUPLICATE_OF projection. Writes are
// best-effort, performed after the relational commit; the graph is a
// derived view that can always be rebuilt from the candidate store.
type DuplicateService struct {
	client *Client
	logger ectologger.Logger
}

// NewDuplicateService creates a new duplicate graph service
func NewDuplicateService(client *Client, logger ectologger.Logger) *DuplicateService {
	return &DuplicateService{
		client: client,
		logger: logger,
	}
}

// ProjectDecision records a terminal decision in the graph. Confirmed
// and merged pairs gain a DUPLICATE_OF edge; rejections remove any
// edge a previous projection may have left.
func (s *DuplicateService) ProjectDecision(ctx context.Context, c *models.DuplicateCandidate, decision *models.ReviewDecision) {
	ctx, span := tracing.StartSpan(ctx, "graph.DuplicateService.ProjectDecision")
	defer span.End()

	if s == nil || s.client == nil {
		return
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": c.ID,
		"status":       c.Status,
	})

	var err error
	switch c.Status {
	case models.CandidateStatusConfirmed, models.CandidateStatusMerged:
		err = s.upsertEdge(ctx, c, decision)
	case models.CandidateStatusRejected:
		err = s.removeEdge(ctx, c)
	default:
		return
	}

	if err != nil {
		log.WithError(err).Error("Failed to project decision into graph")
		return
	}
	log.Debug("Projected decision into graph")
}

// Cluster returns every record transitively linked to the given
// record through DUPLICATE_OF edges, the record itself excluded.
func (s *DuplicateService) Cluster(ctx context.Context, recordID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.DuplicateService.Cluster")
	defer span.End()

	if s == nil || s.client == nil {
		return nil, errors.New("duplicate graph is not enabled")
	}

	cypher := `
		MATCH (r:ClientRecord {id: $id})-[:DUPLICATE_OF*1..]-(other:ClientRecord)
		WHERE other.id <> $id
		RETURN DISTINCT other.id AS id
	`

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{"id": recordID})
		if err != nil {
			return nil, err
		}

		ids := []string{}
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				if str, ok := id.(string); ok {
					ids = append(ids, str)
				}
			}
		}
		return ids, res.Err()
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"record_id": recordID}).Error("Failed to query duplicate cluster")
		return nil, err
	}

	return result.([]string), nil
}

func (s *DuplicateService) upsertEdge(ctx context.Context, c *models.DuplicateCandidate, decision *models.ReviewDecision) error {
	cypher := `
		MERGE (a:ClientRecord {id: $id1})
		SET a.client_type = $client_type
		MERGE (b:ClientRecord {id: $id2})
		SET b.client_type = $client_type
		MERGE (a)-[r:DUPLICATE_OF {candidate_id: $candidate_id}]->(b)
		SET r.status = $status,
		    r.overall_score = $score,
		    r.reviewer_id = $reviewer_id,
		    r.decided_at = datetime()
		RETURN r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id1":          c.RecordID1,
			"id2":          c.RecordID2,
			"client_type":  string(c.ClientType),
			"candidate_id": c.ID,
			"status":       c.Status,
			"score":        c.OverallScore,
			"reviewer_id":  decision.ReviewerID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

func (s *DuplicateService) removeEdge(ctx context.Context, c *models.DuplicateCandidate) error {
	cypher := `
		MATCH (:ClientRecord {id: $id1})-[r:DUPLICATE_OF {candidate_id: $candidate_id}]-(:ClientRecord {id: $id2})
		DELETE r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id1":          c.RecordID1,
			"id2":          c.RecordID2,
			"candidate_id": c.ID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}
