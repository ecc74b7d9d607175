package database

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camden-git/surfaceinspect/logger"
)

func newSQLiteTestStore(t *testing.T) DocumentStore {
	t.Helper()
	db, err := InitGormDB(filepath.Join(t.TempDir(), "store.db"), logger.Nop())
	require.NoError(t, err)
	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storeFactories() map[string]func(t *testing.T) DocumentStore {
	return map[string]func(t *testing.T) DocumentStore{
		"memory": func(t *testing.T) DocumentStore { return NewMemoryStore() },
		"sqlite": newSQLiteTestStore,
	}
}

func decodeMap(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	require.NotNil(t, raw)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestDocumentStore_Contract(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("missing path is nil", func(t *testing.T) {
				store := factory(t)
				raw, err := store.Get(context.Background(), "users/nobody/inspections")
				require.NoError(t, err)
				assert.Nil(t, raw)
			})

			t.Run("push returns ordered unique keys", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				var keys []string
				for i := 0; i < 5; i++ {
					key, err := store.Push(ctx, "users/u1/inspections", map[string]any{"n": i})
					require.NoError(t, err)
					require.True(t, ValidKey(key))
					keys = append(keys, key)
				}
				assert.True(t, sort.StringsAreSorted(keys))

				collection := decodeMap(t, mustGet(t, store, "users/u1/inspections"))
				assert.Len(t, collection, 5)

				one := decodeMap(t, mustGet(t, store, "users/u1/inspections/"+keys[2]))
				assert.Equal(t, float64(2), one["n"])
			})

			t.Run("update merges shallowly", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.Update(ctx, "users/u1/profile", map[string]any{"phone": "1", "role": "owner"}))
				require.NoError(t, store.Update(ctx, "users/u1/profile", map[string]any{"phone": "2", "role": nil}))

				profile := decodeMap(t, mustGet(t, store, "users/u1/profile"))
				assert.Equal(t, map[string]any{"phone": "2"}, profile)

				phone := mustGet(t, store, "users/u1/profile/phone")
				assert.JSONEq(t, `"2"`, string(phone))
			})

			t.Run("delete removes subtree only", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				keep, err := store.Push(ctx, "users/u1/inspections", map[string]any{"keep": true})
				require.NoError(t, err)
				drop, err := store.Push(ctx, "users/u1/inspections", map[string]any{"keep": false})
				require.NoError(t, err)
				_, err = store.Push(ctx, "users/u2/inspections", map[string]any{"other": true})
				require.NoError(t, err)

				require.NoError(t, store.Delete(ctx, "users/u1/inspections/"+drop))
				require.NoError(t, store.Delete(ctx, "users/u1/inspections/does-not-exist"))

				raw, err := store.Get(ctx, "users/u1/inspections/"+drop)
				require.NoError(t, err)
				assert.Nil(t, raw)

				collection := decodeMap(t, mustGet(t, store, "users/u1/inspections"))
				assert.Contains(t, collection, keep)
				assert.Len(t, collection, 1)

				assert.Len(t, decodeMap(t, mustGet(t, store, "users/u2/inspections")), 1)
			})

			t.Run("pushed children merge with a document at the same path", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.Update(ctx, "users/u1/inspections", map[string]any{
					"legacy": map[string]any{"severity": "Good"},
				}))
				pushed, err := store.Push(ctx, "users/u1/inspections", map[string]any{"severity": "Critical"})
				require.NoError(t, err)

				collection := decodeMap(t, mustGet(t, store, "users/u1/inspections"))
				assert.Len(t, collection, 2)
				assert.Equal(t, map[string]any{"severity": "Good"}, collection["legacy"])
				assert.Equal(t, map[string]any{"severity": "Critical"}, collection[pushed])

				users := decodeMap(t, mustGet(t, store, "users/u1"))
				assert.Len(t, users["inspections"], 2)

				// removing a field also removes what was pushed below it
				_, err = store.Push(ctx, "users/u1/inspections/legacy/notes", "a note")
				require.NoError(t, err)
				require.NoError(t, store.Update(ctx, "users/u1/inspections", map[string]any{"legacy": nil}))
				collection = decodeMap(t, mustGet(t, store, "users/u1/inspections"))
				assert.Equal(t, []string{pushed}, mapKeys(collection))
			})

			t.Run("delete of a field inside a document", func(t *testing.T) {
				store := factory(t)
				ctx := context.Background()

				require.NoError(t, store.Update(ctx, "users/u1/profile", map[string]any{"phone": "1", "role": "owner"}))
				require.NoError(t, store.Delete(ctx, "users/u1/profile/phone"))

				assert.Equal(t, map[string]any{"role": "owner"}, decodeMap(t, mustGet(t, store, "users/u1/profile")))
			})
		})
	}
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustGet(t *testing.T, store DocumentStore, path string) json.RawMessage {
	t.Helper()
	raw, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	return raw
}

func TestValidKey(t *testing.T) {
	assert.True(t, ValidKey("0190b1c2-aaaa-7bbb-8ccc-dddddddddddd"))
	assert.True(t, ValidKey("-NabcXYZ_123"))
	for _, bad := range []string{"", ".", "..", "a/b", "a.b", "$x", "#x", "[x]", "a\x00b"} {
		assert.False(t, ValidKey(bad), bad)
	}
}

func TestJoinPath(t *testing.T) {
	p, err := JoinPath("users", "u1", "inspections")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/inspections", p)

	_, err = JoinPath("users", "../u2")
	assert.Error(t, err)
}
