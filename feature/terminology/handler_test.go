package terminology

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestApp(t *testing.T, store *countingStore) *fiber.App {
	t.Helper()
	app := fiber.New()
	feature := NewFeature(store, "Terminology", time.Minute, zap.NewNop(), nil)
	require.NoError(t, feature.Load(app))
	return app
}

func TestHandleList(t *testing.T) {
	store := &countingStore{Store: fixture()}
	app := setupTestApp(t, store)

	resp, err := app.Test(httptest.NewRequest("GET", "/terminologies", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body Overview
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Summary.Terminologies)
	assert.Equal(t, 3, body.Summary.Codes)
	assert.Equal(t, 1, body.Summary.OrphanMappings)
	require.Len(t, body.Terminologies, 2)
	assert.Equal(t, "T1", body.Terminologies[0].ID)

	_, err = app.Test(httptest.NewRequest("GET", "/terminologies", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.lists.Load())

	_, err = app.Test(httptest.NewRequest("GET", "/terminologies?refresh=true", nil))
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.lists.Load())
}

func TestHandleGet(t *testing.T) {
	app := setupTestApp(t, &countingStore{Store: fixture()})

	resp, err := app.Test(httptest.NewRequest("GET", "/terminologies/T1", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body["codes"], 2)
	assert.Len(t, body["mappings"], 1)

	resp, err = app.Test(httptest.NewRequest("GET", "/terminologies/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHandleListStoreFailure(t *testing.T) {
	app := setupTestApp(t, &countingStore{Store: fixture(), fail: errors.New("boom")})

	resp, err := app.Test(httptest.NewRequest("GET", "/terminologies", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "boom")
}

func TestFeature(t *testing.T) {
	f := NewFeature(fixture(), "Terminology", 0, nil, nil)
	assert.Equal(t, "terminology", f.Name())
	assert.True(t, f.IsEnabled())

	assert.False(t, NewFeature(nil, "Terminology", 0, nil, nil).IsEnabled())
}
