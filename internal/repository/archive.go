// Package repository persists completed conversation turns. Archives are
// write-only; nothing is read back into live session state.
package repository

import (
	"context"
	"fmt"

	"design-coach/internal/config"
	"design-coach/internal/domain"
)

type Archive interface {
	SaveTurn(ctx context.Context, turn domain.Turn) error
	Close() error
}

var (
	_ Archive = (*FileArchive)(nil)
	_ Archive = (*SQLiteArchive)(nil)
	_ Archive = (*DynamoArchive)(nil)
)

// DynamoFactory builds the DynamoDB client on demand so other backends never
// load AWS configuration.
type DynamoFactory func(ctx context.Context) (DynamoDBAPI, error)

// Open returns the archive selected by cfg.Backend, or nil for "none".
func Open(ctx context.Context, cfg config.ArchiveConfig, dynamo DynamoFactory) (Archive, error) {
	switch cfg.Backend {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveFile:
		return NewFile(cfg.Dir)
	case config.ArchiveSQLite:
		return NewSQLite(cfg.SQLitePath)
	case config.ArchiveDynamoDB:
		if dynamo == nil {
			return nil, fmt.Errorf("repository: no dynamodb client for table %q", cfg.DynamoDBTable)
		}
		api, err := dynamo(ctx)
		if err != nil {
			return nil, fmt.Errorf("repository: dynamodb client: %w", err)
		}
		return NewDynamo(api, cfg.DynamoDBTable)
	default:
		return nil, fmt.Errorf("repository: unknown archive backend %q", cfg.Backend)
	}
}
