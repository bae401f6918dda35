package blobstore

import (
	"bytes"
	"context"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
)

// AttachmentStore adapts a BlobStore to the byte-oriented contract the chat
// service expects for message attachments. Stored paths are blob IDs.
type AttachmentStore struct {
	store BlobStore
}

func NewAttachmentStore(store BlobStore) *AttachmentStore {
	return &AttachmentStore{store: store}
}

// Store uploads the attachment bytes and returns the blob ID as the storage
// path. The content type is derived from the file extension; anything outside
// the allowed set is stored as an opaque binary.
func (s *AttachmentStore) Store(ctx context.Context, content []byte, pathHint string) (string, error) {
	ct := mime.TypeByExtension(filepath.Ext(pathHint))
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	if !AllowedContentTypes[ct] {
		ct = "application/octet-stream"
	}

	meta := BlobMetadata{
		ID:          uuid.New(),
		FileName:    filepath.Base(pathHint),
		ContentType: ct,
	}
	stored, err := s.store.Upload(ctx, meta, bytes.NewReader(content))
	if err != nil {
		return "", err
	}
	return stored.ID.String(), nil
}

// URLFor returns the download path served by the files handler.
func (s *AttachmentStore) URLFor(storagePath string) string {
	return "/api/v1/files/" + storagePath
}
