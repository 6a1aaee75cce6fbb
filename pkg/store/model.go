package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/bridge-tracker/pkg/transfer"
)

// TransferDao is a data access object that maps directly to the 'transfers' table in PostgreSQL.
// Snapshot holds the full published view; the other columns are kept for filtering.
type TransferDao struct {
	bun.BaseModel  `bun:"table:transfers,alias:t"`
	Key            string          `bun:"key,pk,type:varchar(255)"`
	Source         string          `bun:"source,notnull,type:varchar(64)"`
	Destination    string          `bun:"destination,notnull,type:varchar(64)"`
	TransferID     string          `bun:"transfer_id,notnull,type:varchar(128)"`
	Route          string          `bun:"route,notnull,type:varchar(32)"`
	TransferStatus string          `bun:"transfer_status,notnull,type:varchar(16)"`
	EventStatus    string          `bun:"event_status,notnull,type:varchar(16)"`
	ReleaseStatus  string          `bun:"release_status,notnull,type:varchar(16)"`
	Terminal       bool            `bun:"terminal,notnull,default:false"`
	Snapshot       json.RawMessage `bun:"snapshot,notnull,type:jsonb"`
	CreatedAt      time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toTransferDao(key string, s transfer.Snapshot) (*TransferDao, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return &TransferDao{
		Key:            key,
		Source:         string(s.Source),
		Destination:    string(s.Destination),
		TransferID:     s.ID,
		Route:          s.Route,
		TransferStatus: string(s.Transfer.Status),
		EventStatus:    string(s.Event.Status),
		ReleaseStatus:  string(s.Release.Status),
		Terminal:       s.Terminal(),
		Snapshot:       raw,
		UpdatedAt:      updated,
	}, nil
}

func fromTransferDao(dao *TransferDao) (transfer.Snapshot, error) {
	var s transfer.Snapshot
	if err := json.Unmarshal(dao.Snapshot, &s); err != nil {
		return s, fmt.Errorf("failed to decode snapshot %s: %w", dao.Key, err)
	}
	return s, nil
}
