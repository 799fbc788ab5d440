package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aizoomdoc/docpipeline/pkg/store"
)

// One shared container across this package's tests; each test uses its
// own uuid-namespaced rows rather than a separate schema.
var (
	sharedCfg     Config
	containerOnce sync.Once
	containerErr  error
)

func testConfig(t *testing.T) Config {
	t.Helper()
	containerOnce.Do(func() {
		ctx := context.Background()
		pgContainer, err := tcpostgres.Run(ctx,
			"postgres:17-alpine",
			tcpostgres.WithDatabase("docpipeline_test"),
			tcpostgres.WithUsername("test"),
			tcpostgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			containerErr = fmt.Errorf("connection string: %w", err)
			return
		}
		sharedCfg = parseConnString(connStr)
	})
	require.NoError(t, containerErr)
	return sharedCfg
}

// parseConnString extracts the fields New's Config needs out of a
// postgres:// connection URL produced by the testcontainers module.
func parseConnString(connStr string) Config {
	u, err := url.Parse(connStr)
	if err != nil {
		panic(err)
	}
	password, _ := u.User.Password()
	port, _ := strconv.Atoi(u.Port())
	return Config{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func seedChat(t *testing.T, s *Store, chatID string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, `INSERT INTO chats (id, title) VALUES ($1, 'test chat')`, chatID)
	require.NoError(t, err)
}

func TestCropLocation_ResolvesRegisteredCrop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO document_crops (block_id, document_id, storage_key, page_hint) VALUES ($1, $2, $3, $4)`,
		"AAAA-BBBB-001", docID, "crops/aaaa.pdf", 3)
	require.NoError(t, err)

	ref, err := s.CropLocation(ctx, "AAAA-BBBB-001")
	require.NoError(t, err)
	require.Equal(t, "crops/aaaa.pdf", ref.StorageKey)
	require.Equal(t, 3, ref.PageHint)
}

func TestCropLocation_UnknownBlockReturnsErrCropNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CropLocation(context.Background(), "ZZZZ-ZZZZ-999")
	require.ErrorIs(t, err, store.ErrCropNotFound)
}

func TestDocumentArtifacts_ResolvesRegisteredDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, markdown_key, html_key, blocks_index_key) VALUES ($1, $2, $3, $4)`,
		docID, "docs/a.md", "docs/a.html", "docs/a_blocks.json")
	require.NoError(t, err)

	artifacts, err := s.DocumentArtifacts(ctx, docID)
	require.NoError(t, err)
	require.Equal(t, "docs/a.md", artifacts.MarkdownKey)
	require.Equal(t, "docs/a.html", artifacts.HTMLKey)
	require.Equal(t, "docs/a_blocks.json", artifacts.BlocksIndexKey)
}

func TestDocumentArtifacts_UnknownDocumentReturnsErrDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DocumentArtifacts(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestAddMessageThenAddChatImage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chatID := uuid.New().String()
	seedChat(t, s, chatID)

	messageID, err := s.AddMessage(ctx, chatID, "user", "what is the total?")
	require.NoError(t, err)
	require.NotEmpty(t, messageID)

	require.NoError(t, s.AddChatImage(ctx, chatID, messageID, "AAAA-BBBB-001", "overview", "chat_images/y.png"))

	keys, err := s.GetChatStorageFiles(ctx, chatID)
	require.NoError(t, err)
	require.Equal(t, []string{"chat_images/y.png"}, keys)
}

func TestDeleteChatCascade_RemovesMessagesAndImages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chatID := uuid.New().String()
	seedChat(t, s, chatID)

	msgID := uuid.New().String()
	_, err := s.pool.Exec(ctx, `INSERT INTO chat_messages (id, chat_id, role, content) VALUES ($1, $2, 'assistant', 'hi')`, msgID, chatID)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `INSERT INTO chat_images (id, chat_id, message_id, storage_key, image_kind, block_id) VALUES ($1, $2, $3, 'chat_images/x.png', 'overview', 'AAAA-BBBB-001')`,
		uuid.New().String(), chatID, msgID)
	require.NoError(t, err)

	keys, err := s.GetChatStorageFiles(ctx, chatID)
	require.NoError(t, err)
	require.Equal(t, []string{"chat_images/x.png"}, keys)

	require.NoError(t, s.DeleteChatCascade(ctx, chatID))

	var count int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM chats WHERE id = $1`, chatID).Scan(&count))
	require.Equal(t, 0, count)
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_messages WHERE chat_id = $1`, chatID).Scan(&count))
	require.Equal(t, 0, count)
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM chat_images WHERE chat_id = $1`, chatID).Scan(&count))
	require.Equal(t, 0, count)
}
