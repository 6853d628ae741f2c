// Package documents is the document registry attached to the instrument:
// named references to off-ledger papers (prospectus, subscription agreement)
// with a URI and a content hash. It sits outside the accounting invariants;
// the ledger never reads it.
package documents

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tranchebook/internal/events"
	dErrors "tranchebook/pkg/domain-errors"
	"tranchebook/pkg/platform/sentinel"
)

// Document is one registry entry.
type Document struct {
	Name        string
	URI         string
	ContentHash string
	UpdatedAt   time.Time
}

// Store persists documents by name.
type Store interface {
	Get(ctx context.Context, name string) (Document, error)
	Set(ctx context.Context, doc Document) error
}

// Service validates document writes and emits DocumentUpdated notifications.
type Service struct {
	store     Store
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the registry service.
func NewService(store Store, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Get returns the document by name, or CodeNotFound.
func (s *Service) Get(ctx context.Context, name string) (Document, error) {
	doc, err := s.store.Get(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Document{}, dErrors.New(dErrors.CodeNotFound,
				fmt.Sprintf("document %q is not registered", name))
		}
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Set registers or replaces a document. The hash must be a hex-encoded
// sha256 digest of the document contents.
func (s *Service) Set(ctx context.Context, name, uri, contentHash string) (Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Document{}, dErrors.New(dErrors.CodeBadRequest, "document name must not be empty")
	}
	if strings.TrimSpace(uri) == "" {
		return Document{}, dErrors.New(dErrors.CodeBadRequest, "document uri must not be empty")
	}
	raw, err := hex.DecodeString(contentHash)
	if err != nil || len(raw) != 32 {
		return Document{}, dErrors.New(dErrors.CodeBadRequest, "content hash must be a hex sha256 digest")
	}

	doc := Document{Name: name, URI: uri, ContentHash: contentHash, UpdatedAt: s.now().UTC()}
	if err := s.store.Set(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("set document: %w", err)
	}

	ev := events.New(events.TypeDocumentUpdated)
	ev.DocumentName = doc.Name
	ev.DocumentURI = doc.URI
	ev.DocumentHash = doc.ContentHash
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Error("document event publish failed", "name", doc.Name, "error", err)
	}
	return doc, nil
}
