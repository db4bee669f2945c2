package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAndUpsertSystemSetting(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Prepare(db))
	ctx := context.Background()

	value, found, err := GetSystemSetting(ctx, db, "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSystemSetting(ctx, db, "sample", "value1"))

	value, found, err = GetSystemSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "value1", value)

	require.NoError(t, UpsertSystemSetting(ctx, db, "sample", "value2"))

	value, _, err = GetSystemSetting(ctx, db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value2", value)
}

func TestGetSystemSettingBeforeMigration(t *testing.T) {
	db := openTestDB(t)

	_, found, err := GetSystemSetting(context.Background(), db, "notification.settings")
	require.NoError(t, err)
	require.False(t, found)
}

func TestUpsertSystemSettingRequiresKey(t *testing.T) {
	db := openTestDB(t)
	require.Error(t, UpsertSystemSetting(context.Background(), db, "  ", "value"))
}

func TestSettingsKVRoundTrip(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Prepare(db))

	kv, err := NewSettingsKV(db)
	require.NoError(t, err)

	require.NoError(t, kv.Put(context.Background(), "notification.settings", `{"volume":0.2}`))
	value, found, err := kv.Get(context.Background(), "notification.settings")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"volume":0.2}`, value)

	_, err = NewSettingsKV(nil)
	require.Error(t, err)
}
