package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aizoomdoc/docpipeline/pkg/store"
)

// memMetadataStore is an in-process stand-in for the surrounding
// application's real metadata store, just enough of store.MetadataStore
// to drive one pipeline run
// end-to-end without a database. It exists only for cmd/demo; a real
// deployment wires pkg/store/postgres (or another backend) instead.
type memMetadataStore struct {
	mu sync.Mutex

	documents map[string]store.DocumentArtifacts
	crops     map[string]store.CropRef

	nextMessageID int
	messages      map[string]memMessage
	chatImages    map[string][]string // chatID -> storage keys
}

type memMessage struct {
	chatID  string
	role    string
	content string
}

func newMemMetadataStore() *memMetadataStore {
	return &memMetadataStore{
		documents:  map[string]store.DocumentArtifacts{},
		crops:      map[string]store.CropRef{},
		messages:   map[string]memMessage{},
		chatImages: map[string][]string{},
	}
}

// registerDocument seeds one document's artifact keys, for demo setup only.
func (s *memMetadataStore) registerDocument(documentID string, artifacts store.DocumentArtifacts) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[documentID] = artifacts
}

// registerCrop seeds one block's crop location, for demo setup only.
func (s *memMetadataStore) registerCrop(blockID string, ref store.CropRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crops[blockID] = ref
}

func (s *memMetadataStore) CropLocation(ctx context.Context, blockID string) (store.CropRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.crops[blockID]
	if !ok {
		return store.CropRef{}, store.ErrCropNotFound
	}
	return ref, nil
}

func (s *memMetadataStore) DocumentArtifacts(ctx context.Context, documentID string) (store.DocumentArtifacts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	artifacts, ok := s.documents[documentID]
	if !ok {
		return store.DocumentArtifacts{}, store.ErrDocumentNotFound
	}
	return artifacts, nil
}

func (s *memMetadataStore) AddMessage(ctx context.Context, chatID, role, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMessageID++
	id := strconv.Itoa(s.nextMessageID)
	s.messages[id] = memMessage{chatID: chatID, role: role, content: content}
	return id, nil
}

func (s *memMetadataStore) AddChatImage(ctx context.Context, chatID, messageID, blockID, imageKind, storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return fmt.Errorf("memstore: unknown message %s", messageID)
	}
	s.chatImages[chatID] = append(s.chatImages[chatID], storageKey)
	return nil
}

func (s *memMetadataStore) GetChatStorageFiles(ctx context.Context, chatID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.chatImages[chatID]...), nil
}

func (s *memMetadataStore) DeleteChatCascade(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chatImages, chatID)
	for id, msg := range s.messages {
		if msg.chatID == chatID {
			delete(s.messages, id)
		}
	}
	return nil
}

// memObjectStore is an in-process stand-in for the object store:
// byte-level get/put/delete over a plain map, used by cmd/demo in place
// of a real blob backend.
type memObjectStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{data: map[string][]byte{}}
}

func (s *memObjectStore) seed(key string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = payload
}

func (s *memObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.data[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte{}, payload...), nil
}

func (s *memObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte{}, payload...)
	return key, nil
}

func (s *memObjectStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
