package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// InsertEventInTx marshals payload and appends it to the outbox within tx.
func InsertEventInTx(
	ctx context.Context,
	tx pgx.Tx,
	repo *Repository,
	aggregateType string,
	aggregateID string,
	routingKey string,
	payload interface{},
) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", routingKey, err)
	}

	return repo.InsertEvent(ctx, tx, &Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	})
}
