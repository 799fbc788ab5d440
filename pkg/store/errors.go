package store

import "errors"

// ErrCropNotFound is returned by MetadataStore.CropLocation when no crop is
// registered for the requested block ID.
var ErrCropNotFound = errors.New("store: crop not found")

// ErrDocumentNotFound is returned by MetadataStore.DocumentArtifacts when
// the document UUID is not registered.
var ErrDocumentNotFound = errors.New("store: document not found")

// ErrNotFound is returned by ObjectStore.Get when key does not exist.
var ErrNotFound = errors.New("store: object not found")
