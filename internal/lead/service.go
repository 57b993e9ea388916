package lead

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/premunia/leadline/internal/apperr"
)

// Repository is the storage the Service needs. *Store implements it.
type Repository interface {
	Create(ctx context.Context, in CreateLeadInput) (*Lead, error)
	List(ctx context.Context) ([]*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	Update(ctx context.Context, id string, in UpdateLeadInput) (*Lead, error)
	Delete(ctx context.Context, id string) error
}

// Notifier is told about every newly created lead. Enqueue must not block.
type Notifier interface {
	Enqueue(l Lead)
}

// Service validates lead operations before they reach the store.
type Service struct {
	repo     Repository
	notifier Notifier
}

// NewService creates a lead service. notifier may be nil.
func NewService(repo Repository, notifier Notifier) *Service {
	return &Service{repo: repo, notifier: notifier}
}

// Create validates a public submission and stores it with status "new".
func (s *Service) Create(ctx context.Context, in CreateLeadInput) (*Lead, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = trimOptional(in.Phone)
	in.Profession = trimOptional(in.Profession)
	in.Message = trimOptional(in.Message)

	if in.FirstName == "" || in.LastName == "" || in.Email == "" {
		return nil, apperr.Validation("First name, last name and email are required")
	}
	if !validEmail(in.Email) {
		return nil, apperr.Validation("Invalid email address")
	}

	l, err := s.repo.Create(ctx, in)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if s.notifier != nil {
		s.notifier.Enqueue(*l)
	}
	return l, nil
}

// List returns all leads, newest first.
func (s *Service) List(ctx context.Context) ([]*Lead, error) {
	leads, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return leads, nil
}

// Get returns a single lead.
func (s *Service) Get(ctx context.Context, id string) (*Lead, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Lead not found")
	}
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return l, nil
}

// Update applies a partial update. Required fields cannot be blanked.
func (s *Service) Update(ctx context.Context, id string, in UpdateLeadInput) (*Lead, error) {
	if !validID(id) {
		return nil, apperr.NotFound("Lead not found")
	}

	for _, f := range []*string{in.FirstName, in.LastName, in.Email} {
		if f != nil {
			*f = strings.TrimSpace(*f)
			if *f == "" {
				return nil, apperr.Validation("First name, last name and email cannot be empty")
			}
		}
	}
	// A blank optional field is kept as "" so the store clears the column.
	for _, f := range []*string{in.Phone, in.Profession, in.Message, in.Notes} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
	if in.Email != nil && !validEmail(*in.Email) {
		return nil, apperr.Validation("Invalid email address")
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, apperr.Validation("Invalid status")
	}

	l, err := s.repo.Update(ctx, id, in)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return l, nil
}

// Delete removes a lead.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return apperr.NotFound("Lead not found")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return mapStoreError(err)
	}
	return nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFound("Lead not found")
	case errors.Is(err, ErrDuplicate):
		return apperr.Conflict("Lead already exists")
	default:
		return apperr.Internal(err)
	}
}

// validID accepts only the canonical hyphenated form. uuid.Parse also takes
// urn, braced and bare-hex spellings, which the database would resolve to
// the same row under a different path.
func validID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && strings.EqualFold(u.String(), id)
}

// validEmail accepts a bare address only, not "Name <addr>".
func validEmail(s string) bool {
	a, err := mail.ParseAddress(s)
	return err == nil && a.Address == s
}

func trimOptional(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
