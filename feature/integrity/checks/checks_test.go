package checks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"

	"termsync/core/database"
	"termsync/core/docstore"
	"termsync/core/docstore/memory"
	"termsync/core/snapshot"
	"termsync/core/storage/mocks"
	"termsync/feature/terminology/models"
)

func encodedSnapshot(t *testing.T) []byte {
	t.Helper()
	tree := docstore.NewTree("Terminology")
	tree.Put("T1", docstore.Fields{"name": docstore.String("One")}).
		Subcollection("mappings").Put("A", docstore.Fields{"code": docstore.String("A")})
	var buf bytes.Buffer
	require.NoError(t, snapshot.FromTrees(tree).Encode(&buf))
	return buf.Bytes()
}

func TestListSnapshots(t *testing.T) {
	t.Run("Bucket Missing", func(t *testing.T) {
		client := mocks.NewClient(t)
		client.On("BucketExists", mock.Anything, "snaps").Return(false, nil)

		_, err := ListSnapshots(context.Background(), client, "snaps", "snapshots")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("Filters And Sorts", func(t *testing.T) {
		client := mocks.NewClient(t)
		client.On("BucketExists", mock.Anything, "snaps").Return(true, nil)
		client.On("ListObjects", mock.Anything, "snaps", minio.ListObjectsOptions{Prefix: "snapshots/", Recursive: true}).
			Return(mocks.Listing(
				minio.ObjectInfo{Key: "snapshots/b.json", Size: 20},
				minio.ObjectInfo{Key: "snapshots/readme.txt", Size: 5},
				minio.ObjectInfo{Key: "snapshots/a.json", Size: 10},
			))

		got, err := ListSnapshots(context.Background(), client, "snaps", "snapshots")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "snapshots/a.json", got[0].Key)
		assert.Equal(t, int64(20), got[1].Size)
	})

	t.Run("List Error", func(t *testing.T) {
		client := mocks.NewClient(t)
		client.On("BucketExists", mock.Anything, "snaps").Return(true, nil)
		client.On("ListObjects", mock.Anything, "snaps", mock.Anything).
			Return(mocks.Listing(minio.ObjectInfo{Err: errors.New("denied")}))

		_, err := ListSnapshots(context.Background(), client, "snaps", "")
		assert.ErrorContains(t, err, "denied")
	})
}

func TestValidateSnapshot(t *testing.T) {
	client := mocks.NewClient(t)
	client.On("GetObject", mock.Anything, "snaps", "good.json", mock.Anything).
		Return(encodedSnapshot(t), nil)
	client.On("GetObject", mock.Anything, "snaps", "bad.json", mock.Anything).
		Return(io.NopCloser(bytes.NewReader([]byte("{not json"))), nil)
	client.On("GetObject", mock.Anything, "snaps", "gone.json", mock.Anything).
		Return(nil, errors.New("no such key"))

	good := ValidateSnapshot(context.Background(), client, "snaps", "good.json")
	assert.Equal(t, "ok", good.Status)
	assert.Equal(t, []string{"Terminology"}, good.Collections)
	assert.Equal(t, 2, good.Documents)

	bad := ValidateSnapshot(context.Background(), client, "snaps", "bad.json")
	assert.Equal(t, "error", bad.Status)
	assert.Contains(t, bad.Error, "decode snapshot")

	gone := ValidateSnapshot(context.Background(), client, "snaps", "gone.json")
	assert.Equal(t, "error", gone.Status)
	assert.Contains(t, gone.Error, "no such key")
}

func TestCheckSchema(t *testing.T) {
	t.Run("Nil DB", func(t *testing.T) {
		_, err := CheckSchema(nil)
		assert.Error(t, err)
	})

	t.Run("Migrated", func(t *testing.T) {
		db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(models.Tables()...))

		report, err := CheckSchema(db)
		require.NoError(t, err)
		assert.True(t, report.Matched)
		assert.Len(t, report.Tables, len(models.ExpectedColumns()))
		assert.Equal(t, "ok", report.Tables["codes"].Status)
	})

	t.Run("Partial", func(t *testing.T) {
		db, err := database.Connect(database.Config{Driver: database.DriverSQLite, Name: ":memory:"})
		require.NoError(t, err)
		require.NoError(t, db.Exec("CREATE TABLE codes (terminology_id TEXT, code TEXT)").Error)

		report, err := CheckSchema(db)
		require.NoError(t, err)
		assert.False(t, report.Matched)
		assert.Equal(t, "error", report.Tables["codes"].Status)
		assert.ElementsMatch(t, []string{"display", "description", "system"}, report.Tables["codes"].MissingColumns)
		assert.Equal(t, "error", report.Tables["terminologies"].Status)
	})

	t.Run("Inspector Failure", func(t *testing.T) {
		sqlDB, sqlMock, err := sqlmock.New()
		require.NoError(t, err)
		db, err := database.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}))
		require.NoError(t, err)
		for range models.ExpectedColumns() {
			sqlMock.ExpectQuery("information_schema").WillReturnError(errors.New("access denied"))
		}

		report, err := CheckSchema(db)
		require.NoError(t, err)
		assert.False(t, report.Matched)
		assert.Len(t, report.Errors, len(models.ExpectedColumns()))
		assert.Contains(t, report.Errors[0], "access denied")
	})
}

func TestCheckEmpty(t *testing.T) {
	tree := docstore.NewTree("Terminology")
	tree.Put("T1", docstore.Fields{}).Subcollection("mappings").Put("A", docstore.Fields{})
	store := memory.FromTrees(tree)

	rep, err := CheckEmpty(context.Background(), store, "Terminology")
	require.NoError(t, err)
	assert.False(t, rep.Empty)
	assert.Equal(t, 2, rep.Remaining)
	assert.Len(t, rep.Sample, 2)

	rep, err = CheckEmpty(context.Background(), store, "Other")
	require.NoError(t, err)
	assert.True(t, rep.Empty)
	assert.NotNil(t, rep.Sample)
}
