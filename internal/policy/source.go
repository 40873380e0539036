package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/flightqa/flightqa/internal/storage"
)

var ErrDocumentNotFound = errors.New("policy document not found")

// DocumentSource loads the raw policy text of an airline.
type DocumentSource interface {
	Document(ctx context.Context, airline Airline) (string, error)
}

// ObjectSource reads policy documents from an object store, keyed by the
// catalog's policy file name.
type ObjectSource struct {
	store storage.ObjectStore
}

func NewObjectSource(store storage.ObjectStore) (*ObjectSource, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	return &ObjectSource{store: store}, nil
}

func (s *ObjectSource) Document(ctx context.Context, airline Airline) (string, error) {
	if airline.PolicyFile == "" {
		return "", ErrDocumentNotFound
	}
	key, err := storage.PolicyDocumentKey(airline.PolicyFile)
	if err != nil {
		return "", err
	}
	raw, err := storage.ReadAll(ctx, s.store, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", ErrDocumentNotFound
		}
		return "", fmt.Errorf("read policy for %s: %w", airline.Name, err)
	}
	return string(raw), nil
}
