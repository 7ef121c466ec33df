package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrCaseNotFound is returned when no case exists for the given id.
	ErrCaseNotFound = errors.New("case not found")
	// ErrInsightExists is returned when a second insight is inserted for a
	// case that already has one.
	ErrInsightExists = errors.New("insight already exists for case")
)

type Repository interface {
	CreateCase(ctx context.Context, cs *Case) error
	GetCase(ctx context.Context, id uuid.UUID) (*CaseWithInsight, error)
	ListCases(ctx context.Context) ([]*Case, error)
	UpdateCaseStatus(ctx context.Context, id uuid.UUID, status Status) (*Case, error)
	DeleteCase(ctx context.Context, id uuid.UUID) error
	CreateInsight(ctx context.Context, ins *Insight) error
	GetInsightByCaseID(ctx context.Context, caseID uuid.UUID) (*Insight, error)
}
