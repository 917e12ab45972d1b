package repository

import (
	"context"

	"github.com/isectech/hospital-threat-engine/domain/entity"
)

// SnapshotRepository persists one model snapshot outside the process
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot entity.ModelSnapshot) error
	// Load returns a NOT_FOUND AppError when nothing has been saved yet
	Load(ctx context.Context) (entity.ModelSnapshot, error)
	Ping(ctx context.Context) error
	Close() error
}

// ClassificationRepository keeps a history of classification results
type ClassificationRepository interface {
	Save(ctx context.Context, result *entity.ClassificationResult) error
	// Recent returns up to limit results, newest first
	Recent(ctx context.Context, limit int) ([]*entity.ClassificationResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// ResultPublisher fans classification results out to downstream consumers
type ResultPublisher interface {
	Publish(ctx context.Context, results ...*entity.ClassificationResult) error
	Close() error
}
