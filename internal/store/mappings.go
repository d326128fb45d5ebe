package store

import (
	"context"
	"database/sql"
	"time"

	"catalog-sync/internal/mapping"
	"catalog-sync/internal/models"
)

type mappingRow struct {
	ID        int64     `db:"id"`
	Version   int       `db:"version"`
	Content   []byte    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// SaveMappingDocument validates and stores a mapping document as the new
// active configuration. The document is kept whole so export returns exactly
// what was imported.
func (s *Store) SaveMappingDocument(ctx context.Context, content []byte) (*mapping.Document, error) {
	doc, err := mapping.Load(content)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO field_mappings (version, content) VALUES ($1, $2)",
		doc.Version, content)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ActiveMappingDocument returns the most recently imported document and its
// raw content. Raw bytes back the export endpoint's round-trip guarantee.
func (s *Store) ActiveMappingDocument(ctx context.Context) (*mapping.Document, []byte, error) {
	var row mappingRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM field_mappings ORDER BY created_at DESC, id DESC LIMIT 1")
	if err == sql.ErrNoRows {
		return nil, nil, &models.MappingError{Detail: "no mapping document has been imported"}
	}
	if err != nil {
		return nil, nil, err
	}

	doc, err := mapping.Load(row.Content)
	if err != nil {
		return nil, nil, err
	}
	return doc, row.Content, nil
}
