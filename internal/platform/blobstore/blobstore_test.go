package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func seedBlob(t *testing.T, store BlobStore, roomID uuid.UUID, fileName, contentType, content string) *BlobMetadata {
	t.Helper()
	meta, err := store.Upload(context.Background(), BlobMetadata{
		FileName:    fileName,
		ContentType: contentType,
		RoomID:      roomID,
	}, strings.NewReader(content))
	if err != nil {
		t.Fatalf("seed upload: %v", err)
	}
	return meta
}

func TestUpload_ComputesSizeAndHash(t *testing.T) {
	store := NewInMemoryBlobStore()
	content := "scan results attached"
	meta := seedBlob(t, store, uuid.New(), "scan.pdf", "application/pdf", content)

	if meta.Size != int64(len(content)) {
		t.Errorf("size = %d, want %d", meta.Size, len(content))
	}
	wantHash := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if meta.Hash != wantHash {
		t.Errorf("hash = %s, want %s", meta.Hash, wantHash)
	}
	if meta.ID == uuid.Nil {
		t.Error("expected generated ID")
	}
	if meta.CreatedAt.IsZero() {
		t.Error("expected created-at timestamp")
	}
}

func TestUpload_RejectsMissingFileName(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{}, strings.NewReader("x"))
	if err != ErrMissingFileName {
		t.Errorf("err = %v, want ErrMissingFileName", err)
	}
}

func TestUpload_RejectsDisallowedContentType(t *testing.T) {
	store := NewInMemoryBlobStore()
	_, err := store.Upload(context.Background(), BlobMetadata{
		FileName:    "evil.exe",
		ContentType: "application/x-msdownload",
	}, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected content type error")
	}
}

func TestDownload_RoundTrip(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := seedBlob(t, store, uuid.New(), "note.txt", "text/plain", "handover notes")

	rc, got, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte("handover notes")) {
		t.Errorf("content = %q", data)
	}
	if got.FileName != "note.txt" {
		t.Errorf("file name = %q", got.FileName)
	}
}

func TestDownload_NotFound(t *testing.T) {
	store := NewInMemoryBlobStore()
	if _, _, err := store.Download(context.Background(), uuid.New()); err != ErrBlobNotFound {
		t.Errorf("err = %v, want ErrBlobNotFound", err)
	}
}

func TestDelete_RemovesBlob(t *testing.T) {
	store := NewInMemoryBlobStore()
	meta := seedBlob(t, store, uuid.New(), "x.txt", "text/plain", "x")

	if err := store.Delete(context.Background(), meta.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), meta.ID); err != ErrBlobNotFound {
		t.Errorf("err = %v, want ErrBlobNotFound", err)
	}
	if err := store.Delete(context.Background(), meta.ID); err != ErrBlobNotFound {
		t.Errorf("second delete err = %v, want ErrBlobNotFound", err)
	}
}

func TestListByRoom_FiltersAndPaginates(t *testing.T) {
	store := NewInMemoryBlobStore()
	roomID := uuid.New()
	otherRoom := uuid.New()

	for i := 0; i < 5; i++ {
		seedBlob(t, store, roomID, fmt.Sprintf("f%d.txt", i), "text/plain", "x")
	}
	seedBlob(t, store, otherRoom, "other.txt", "text/plain", "x")

	page, total, err := store.ListByRoom(context.Background(), roomID, 2, 0)
	if err != nil {
		t.Fatalf("ListByRoom: %v", err)
	}
	if total != 5 {
		t.Errorf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Errorf("page size = %d, want 2", len(page))
	}

	page, _, _ = store.ListByRoom(context.Background(), roomID, 10, 4)
	if len(page) != 1 {
		t.Errorf("last page size = %d, want 1", len(page))
	}

	page, total, _ = store.ListByRoom(context.Background(), roomID, 10, 10)
	if len(page) != 0 || total != 5 {
		t.Errorf("out-of-range page = %d items, total %d", len(page), total)
	}
}

func TestBlobMetadata_URL(t *testing.T) {
	id := uuid.New()
	meta := BlobMetadata{ID: id}
	want := "/api/v1/files/" + id.String()
	if meta.URL() != want {
		t.Errorf("URL = %q, want %q", meta.URL(), want)
	}
}
