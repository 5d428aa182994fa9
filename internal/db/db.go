package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"docqa/internal/config"
)

// ChunkRow is one document chunk persisted with its embedding in pgvector.
type ChunkRow struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`
	ID            int64             `bun:"id,pk,autoincrement"`
	DocumentID    string            `bun:"document_id,notnull"`
	Position      int               `bun:"position,notnull"`
	Content       string            `bun:"content,notnull"`
	Metadata      map[string]string `bun:"metadata,type:jsonb"`
	Embedding     []float32         `bun:"embedding,notnull,type:vector(768)"`
	Distance      float64           `bun:"distance,scanonly"`
}

func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.URL + "?sslmode=disable"
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.Password))), nil
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// InitDB creates the pgvector extension and chunk table. The vector size is
// fixed at table creation; changing it requires dropping the table.
func InitDB(ctx context.Context, db bun.IDB, vectorSize int) error {
	if _, err := db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("creating vector extension: %w", err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS document_chunks (
		id BIGSERIAL PRIMARY KEY,
		document_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		metadata JSONB,
		embedding vector(%d) NOT NULL
	)`, vectorSize)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating chunk table: %w", err)
	}
	_, err := db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS document_chunks_document_id_idx ON document_chunks (document_id)")
	return err
}

func StoreChunks(ctx context.Context, db bun.IDB, rows []ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func LoadChunks(ctx context.Context, db bun.IDB, documentID string) ([]ChunkRow, error) {
	var rows []ChunkRow
	err := db.NewSelect().
		Model(&rows).
		Where("document_id = ?", documentID).
		Order("position ASC").
		Scan(ctx)
	return rows, err
}

func CountChunks(ctx context.Context, db bun.IDB, documentID string) (int, error) {
	return db.NewSelect().
		Model((*ChunkRow)(nil)).
		Where("document_id = ?", documentID).
		Count(ctx)
}

// SearchChunks returns the chunks of one document nearest to the query
// embedding, closest first.
func SearchChunks(ctx context.Context, db bun.IDB, documentID string, queryEmbedding []float32, limit int) ([]ChunkRow, error) {
	var rows []ChunkRow
	err := db.NewSelect().
		Model(&rows).
		ColumnExpr("c.*").
		ColumnExpr("embedding <-> ? AS distance", queryEmbedding).
		Where("document_id = ?", documentID).
		OrderExpr("embedding <-> ?", queryEmbedding).
		Limit(limit).
		Scan(ctx)
	return rows, err
}

// DeleteChunks removes a document's rows so a rebuild replaces them.
func DeleteChunks(ctx context.Context, db bun.IDB, documentID string) error {
	_, err := db.NewDelete().
		Model((*ChunkRow)(nil)).
		Where("document_id = ?", documentID).
		Exec(ctx)
	return err
}
