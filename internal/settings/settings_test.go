package settings_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemnar/internal/settings"
	"gemnar/internal/testsupport"
)

func TestIsIPExcluded(t *testing.T) {
	t.Run("excludes exact IP match", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, settings.KeyExcludedIPs, "192.168.1.100")
		require.NoError(t, err)

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.True(t, isExcluded, "The exact IP in the exclusion list should be excluded")

		isExcluded, err = settings.IsIPExcluded("192.168.1.101")
		require.NoError(t, err)
		assert.False(t, isExcluded, "A different IP should not be excluded")
	})

	t.Run("handles IPs with whitespace", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, settings.KeyExcludedIPs, " 192.168.1.100 , 10.0.0.1 ")
		require.NoError(t, err)

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.True(t, isExcluded, "IP should be excluded even with spaces in the setting")

		isExcluded, err = settings.IsIPExcluded("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, isExcluded, "Second IP should be excluded even with spaces in the setting")
	})

	t.Run("handles empty exclusion value", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, settings.KeyExcludedIPs, "")
		require.NoError(t, err)

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.False(t, isExcluded, "With empty exclusion value, no IPs should be excluded")
	})

	t.Run("reflects updates to exclusion list", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, settings.KeyExcludedIPs, "192.168.1.100")
		require.NoError(t, err)

		isExcluded, err := settings.IsIPExcluded("192.168.1.100")
		require.NoError(t, err)
		assert.True(t, isExcluded, "Initial IP should be excluded")

		err = settings.UpdateSetting(db, settings.KeyExcludedIPs, "192.168.1.100,10.0.0.5")
		require.NoError(t, err)

		isExcluded, err = settings.IsIPExcluded("10.0.0.5")
		require.NoError(t, err)
		assert.True(t, isExcluded, "Second IP should be excluded after update")
	})
}

func TestGetSetting(t *testing.T) {
	t.Run("returns value for existing setting", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, "test_setting", "test_value")
		require.NoError(t, err)

		value, err := settings.GetSetting(db, "test_setting")
		require.NoError(t, err)
		assert.Equal(t, "test_value", value, "GetSetting should return the correct value")
	})

	t.Run("returns error for non-existent setting", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		_, err := settings.GetSetting(db, "non_existent")
		assert.Error(t, err, "GetSetting should return an error for non-existent setting")
	})
}

func TestUpdateSetting(t *testing.T) {
	t.Run("updates existing setting", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, "test_setting", "initial_value")
		require.NoError(t, err)

		err = settings.UpdateSetting(db, "test_setting", "updated_value")
		require.NoError(t, err)

		value, err := settings.GetSetting(db, "test_setting")
		require.NoError(t, err)
		assert.Equal(t, "updated_value", value, "UpdateSetting should update the value correctly")
	})

	t.Run("creates new setting if not exists", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		err := settings.UpdateSetting(db, "new_setting", "new_value")
		require.NoError(t, err)

		value, err := settings.GetSetting(db, "new_setting")
		require.NoError(t, err)
		assert.Equal(t, "new_value", value, "UpdateSetting should create a new setting if it doesn't exist")
	})
}

func TestAdminAPIKey(t *testing.T) {
	t.Run("generates a key on first use and reuses it afterwards", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		key, err := settings.GetOrCreateAdminAPIKey(db)
		require.NoError(t, err)
		assert.Len(t, key, 32)

		again, err := settings.GetOrCreateAdminAPIKey(db)
		require.NoError(t, err)
		assert.Equal(t, key, again, "Existing key should be returned, not regenerated")
	})

	t.Run("regeneration replaces the stored key", func(t *testing.T) {
		dbManager, _ := testsupport.SetupTestDBManager(t)
		db := dbManager.GetConnection()
		settings.SetupDefaultSettings(db)

		first, err := settings.GenerateAdminAPIKey(db)
		require.NoError(t, err)

		second, err := settings.GenerateAdminAPIKey(db)
		require.NoError(t, err)
		assert.NotEqual(t, first, second)

		stored, err := settings.GetAdminAPIKey(db)
		require.NoError(t, err)
		assert.Equal(t, second, stored)
	})
}
