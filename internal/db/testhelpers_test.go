package db

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tOgg1/gradebook/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := OpenInMemory()
	require.NoError(t, err)
	_, err = database.MigrateUp(context.Background())
	require.NoError(t, err)
	return database
}

func seedMarkSet(t *testing.T, database *DB, students, assessments int) models.MarkSetRef {
	t.Helper()

	repo := NewMarkSetRepository(database)
	markSet, err := repo.Seed(context.Background(), SeedOptions{
		ClassName:   "Math 9",
		Students:    students,
		Assessments: assessments,
		Rand:        rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	return markSet.Ref()
}
