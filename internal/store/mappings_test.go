package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/models"
)

const validMapping = `{"version":3,"rules":[{"source":"label","dest":"name","kind":"passthrough"}]}`

func TestSaveMappingDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO field_mappings").
		WithArgs(3, []byte(validMapping)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	doc, err := store.SaveMappingDocument(context.Background(), []byte(validMapping))
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveMappingDocumentRejectsInvalidDocument(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.SaveMappingDocument(context.Background(), []byte(`{"version":0}`))
	var mapErr *models.MappingError
	require.True(t, errors.As(err, &mapErr))
}

func TestActiveMappingDocumentRoundTripsRawContent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM field_mappings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content", "created_at"}).
			AddRow(int64(1), 3, []byte(validMapping), time.Now()))

	doc, raw, err := store.ActiveMappingDocument(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, doc.Version)
	assert.Equal(t, []byte(validMapping), raw)
}

func TestActiveMappingDocumentWithoutImport(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM field_mappings").
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content", "created_at"}))

	_, _, err := store.ActiveMappingDocument(context.Background())
	var mapErr *models.MappingError
	require.True(t, errors.As(err, &mapErr))
}
