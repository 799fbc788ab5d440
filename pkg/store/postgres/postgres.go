// Package postgres is the reference store.MetadataStore implementation,
// built on pgx with embedded golang-migrate migrations.
package postgres

import (
	"context"
	stdsql "database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/aizoomdoc/docpipeline/pkg/store"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection settings for the metadata database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns int32
}

func (c Config) dsn() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Store implements store.MetadataStore against PostgreSQL via pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a connection pool, applies embedded migrations, and returns a
// ready Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func runMigrations(cfg Config) error {
	db, err := stdsql.Open("pgx", cfg.dsn())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	defer sourceDriver.Close()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, cfg.Database, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// CropLocation resolves a block ID to its registered crop storage key.
func (s *Store) CropLocation(ctx context.Context, blockID string) (store.CropRef, error) {
	var ref store.CropRef
	row := s.pool.QueryRow(ctx,
		`SELECT storage_key, page_hint FROM document_crops WHERE block_id = $1`, blockID)
	if err := row.Scan(&ref.StorageKey, &ref.PageHint); err != nil {
		return store.CropRef{}, fmt.Errorf("%w: %s", store.ErrCropNotFound, blockID)
	}
	return ref, nil
}

// DocumentArtifacts resolves documentID to its artifact storage keys.
func (s *Store) DocumentArtifacts(ctx context.Context, documentID string) (store.DocumentArtifacts, error) {
	var a store.DocumentArtifacts
	row := s.pool.QueryRow(ctx,
		`SELECT markdown_key, html_key, blocks_index_key FROM documents WHERE id = $1`, documentID)
	if err := row.Scan(&a.MarkdownKey, &a.HTMLKey, &a.BlocksIndexKey); err != nil {
		return store.DocumentArtifacts{}, fmt.Errorf("%w: %s", store.ErrDocumentNotFound, documentID)
	}
	return a, nil
}

// AddMessage inserts a new chat_messages row and returns its generated ID.
func (s *Store) AddMessage(ctx context.Context, chatID, role, content string) (string, error) {
	messageID := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (id, chat_id, role, content) VALUES ($1, $2, $3, $4)`,
		messageID, chatID, role, content)
	if err != nil {
		return "", fmt.Errorf("insert chat_messages: %w", err)
	}
	return messageID, nil
}

// AddChatImage links a rendered material image to messageID.
func (s *Store) AddChatImage(ctx context.Context, chatID, messageID, blockID, imageKind, storageKey string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_images (id, chat_id, message_id, storage_key, image_kind, block_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), chatID, messageID, storageKey, imageKind, blockID)
	if err != nil {
		return fmt.Errorf("insert chat_images: %w", err)
	}
	return nil
}

// GetChatStorageFiles lists every storage key chatID's chat_images rows
// reference, for the deletion worker to clear from object storage.
func (s *Store) GetChatStorageFiles(ctx context.Context, chatID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT storage_key FROM chat_images WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query chat storage files: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan storage key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DeleteChatCascade deletes chatID's rows in the fixed order
// chat_images -> chat_messages -> chats, inside one transaction.
func (s *Store) DeleteChatCascade(ctx context.Context, chatID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chat_images WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete chat_images: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE chat_id = $1`, chatID); err != nil {
		return fmt.Errorf("delete chat_messages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM chats WHERE id = $1`, chatID); err != nil {
		return fmt.Errorf("delete chats: %w", err)
	}
	return tx.Commit(ctx)
}
