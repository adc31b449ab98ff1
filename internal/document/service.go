package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ServiceConfig holds configuration for the document service.
type ServiceConfig struct {
	Repository Repository
	Storage    Storage
	Signer     *URLSigner
	Clock      clock.Clock
	Logger     zerolog.Logger

	// BaseURL prefixes signed links, e.g. https://api.lifelink.app.
	BaseURL string

	// MaxSize defaults to MaxFileSize.
	MaxSize int64
}

// Service manages user documents.
type Service struct {
	repo    Repository
	storage Storage
	signer  *URLSigner
	clock   clock.Clock
	logger  zerolog.Logger
	baseURL string
	maxSize int64
}

// NewService creates a new document service.
func NewService(cfg ServiceConfig) *Service {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	return &Service{
		repo:    cfg.Repository,
		storage: cfg.Storage,
		signer:  cfg.Signer,
		clock:   clk,
		logger:  cfg.Logger,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		maxSize: maxSize,
	}
}

// MaxSize returns the upload limit in bytes.
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// Upload stores r as fileName for userID. The blob is written first and
// removed again if the metadata cannot be recorded.
func (s *Service) Upload(ctx context.Context, userID, fileName, contentType string, r io.Reader) (*Document, error) {
	name, err := CleanFileName(fileName)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("checking existing documents: %w", err)
	}
	if exists {
		return nil, ErrDuplicateFile
	}

	if contentType == "" {
		contentType = "application/octet-stream"
	}

	now := s.clock.Now().UTC()
	key := fmt.Sprintf("user-%s/%d_%s", userID, now.UnixMilli(), name)

	size, err := s.storage.Put(ctx, key, r, s.maxSize)
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("storing file: %w", err)
	}
	if size == 0 {
		_ = s.storage.Delete(ctx, key)
		return nil, ErrEmptyFile
	}

	doc := &Document{
		ID:          "doc_" + uuid.New().String()[:22],
		UserID:      userID,
		FileName:    name,
		ContentType: contentType,
		Size:        size,
		StoragePath: key,
		UploadedAt:  now,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if derr := s.storage.Delete(ctx, key); derr != nil {
			s.logger.Error().Err(derr).Str("storage_path", key).Msg("failed to remove orphaned upload")
		}
		if errors.Is(err, ErrDuplicateFile) {
			return nil, err
		}
		return nil, fmt.Errorf("recording document: %w", err)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("document_id", doc.ID).
		Int64("size", size).
		Msg("document uploaded")
	return doc, nil
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]*Document, error) {
	return s.repo.List(ctx, userID)
}

// Get returns one of the user's documents.
func (s *Service) Get(ctx context.Context, userID, docID string) (*Document, error) {
	doc, err := s.repo.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the document's metadata and blob.
func (s *Service) Delete(ctx context.Context, userID, docID string) error {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, docID); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Error().Err(err).Str("storage_path", doc.StoragePath).Msg("failed to remove document blob")
	}
	return nil
}

// SignedURL returns a download link for one of the user's documents.
func (s *Service) SignedURL(ctx context.Context, userID, docID string) (*SignedURL, error) {
	doc, err := s.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(userID, doc.ID)
	if err != nil {
		return nil, err
	}
	return &SignedURL{
		URL:       s.baseURL + "/v1/files/" + url.PathEscape(token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open verifies a download token and opens the document it grants.
func (s *Service) Open(ctx context.Context, token string) (*Document, io.ReadCloser, error) {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil, err
	}
	doc, err := s.Get(ctx, claims.Subject, claims.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.storage.Open(ctx, doc.StoragePath)
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}
