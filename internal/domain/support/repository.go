package support

import (
	"context"
	"errors"
)

var (
	errQuestionRequired = errors.New("record question cannot be empty")
	errAnswerRequired   = errors.New("record answer cannot be empty")
)

// RecordLister returns the full current record set in a stable order.
type RecordLister interface {
	ListAll(ctx context.Context) ([]Record, error)
}

// Repository persists knowledge base records.
type Repository interface {
	RecordLister
	Upsert(ctx context.Context, record Record) (Record, error)
}
