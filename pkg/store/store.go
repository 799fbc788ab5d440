// Package store defines the narrow persistence interfaces the orchestrator
// core depends on: chat/message storage and object storage are owned by
// the surrounding application, and this package only declares the shapes
// the core needs to call into them.
// A concrete MetadataStore lives in pkg/store/postgres as a reference
// implementation; ObjectStore implementations (S3, local disk, etc.) are
// expected to be supplied by the embedding application.
package store

import "context"

// MetadataStore is the subset of chat/message/crop/document persistence the
// core pipeline needs: resolving a document's artifact locations and a
// block's crop artifact, persisting the assistant's answer and the images
// shown alongside it, listing a chat's storage keys for deletion, and
// running the deletion cascade itself. The rest of the surrounding
// application's metadata surface (users, settings, system prompts, tree
// nodes) is out of this core's scope.
type MetadataStore interface {
	// CropLocation resolves a block ID to the storage key of its source PDF
	// crop, or returns ErrCropNotFound if no crop is registered for it.
	CropLocation(ctx context.Context, blockID string) (CropRef, error)

	// DocumentArtifacts resolves a document UUID to the storage keys of its
	// Markdown block stream, HTML OCR mirror, and blocks-index manifest.
	// Any of the three keys may be empty if that artifact was never
	// produced for the document.
	DocumentArtifacts(ctx context.Context, documentID string) (DocumentArtifacts, error)

	// AddMessage persists one chat message (role is "user", "assistant", or
	// "system") and returns its generated message ID.
	AddMessage(ctx context.Context, chatID, role, content string) (messageID string, err error)

	// AddChatImage links a rendered material image to a message. The
	// pipeline links images to the *user* message, not the assistant's,
	// so the UI shows them inline above the reply.
	AddChatImage(ctx context.Context, chatID, messageID, blockID, imageKind, storageKey string) error

	// GetChatStorageFiles lists every object-store key owned by chatID, so
	// the deletion worker can remove them before dropping metadata rows.
	GetChatStorageFiles(ctx context.Context, chatID string) ([]string, error)

	// DeleteChatCascade deletes chatID's rows in the fixed order
	// chat_images -> chat_messages -> chats, in a single transaction.
	DeleteChatCascade(ctx context.Context, chatID string) error
}

// CropRef identifies where a block's source-page crop PDF lives.
type CropRef struct {
	StorageKey string
	PageHint   int
}

// DocumentArtifacts is the set of object-store keys backing one document's
// immutable artifacts: the Markdown block stream, the HTML OCR mirror, and
// the blocks-index manifest.
type DocumentArtifacts struct {
	MarkdownKey    string
	HTMLKey        string
	BlocksIndexKey string
}

// ObjectStore is the narrow blob-storage interface the core pipeline needs:
// fetch a crop's bytes, and delete a chat's artifacts on cascade delete.
// Upload of rendered materials back to the store is also exposed so
// pkg/materials can dual-upload without depending on a concrete backend.
type ObjectStore interface {
	// Get fetches the bytes stored at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put uploads payload under key, returning the durable key (which may
	// differ from the requested one, e.g. if the backend content-addresses).
	Put(ctx context.Context, key string, payload []byte, contentType string) (string, error)

	// Delete removes the object at key. Deleting a missing key is not an
	// error, matching the lazy-delete posture used elsewhere in this repo.
	Delete(ctx context.Context, key string) error
}
