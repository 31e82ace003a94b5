package dashboard

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/environment"
	"github.com/i474232898/karwanua/internal/observability"
)

func TestFilePreferenceStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "preferences.json")
	store, err := NewFilePreferenceStore(path)
	require.NoError(t, err)

	_, ok, err := store.Get(ModelPreferenceKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ModelPreferenceKey, "llama-3.3-70b-versatile"))
	require.NoError(t, store.Set("ui.theme", "dark"))

	reopened, err := NewFilePreferenceStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ModelPreferenceKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "llama-3.3-70b-versatile", v)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFilePreferenceStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preferences.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	store, err := NewFilePreferenceStore(path)
	require.NoError(t, err)

	_, _, err = store.Get(ModelPreferenceKey)
	var perr *environment.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "{not json", perr.Raw)
}

type memoryPreferences struct {
	values map[string]string
	getErr error
	setErr error
	sets   int
}

func (m *memoryPreferences) Get(key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryPreferences) Set(key, value string) error {
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[key] = value
	return nil
}

func TestModelPreference_LoadsOnce(t *testing.T) {
	store := &memoryPreferences{values: map[string]string{ModelPreferenceKey: "mixtral-8x7b-32768"}}
	p := NewModelPreference(store, environment.DefaultModel, observability.Discard())

	store.values[ModelPreferenceKey] = "changed-elsewhere"
	assert.Equal(t, "mixtral-8x7b-32768", p.Get())
}

func TestModelPreference_DefaultsWhenUnreadable(t *testing.T) {
	store := &memoryPreferences{getErr: errors.New("disk gone")}
	p := NewModelPreference(store, environment.DefaultModel, observability.Discard())
	assert.Equal(t, environment.DefaultModel, p.Get())
}

func TestModelPreference_SetWritesThrough(t *testing.T) {
	store := &memoryPreferences{}
	p := NewModelPreference(store, environment.DefaultModel, observability.Discard())

	require.NoError(t, p.Set("llama-3.3-70b-versatile"))
	assert.Equal(t, "llama-3.3-70b-versatile", p.Get())
	assert.Equal(t, "llama-3.3-70b-versatile", store.values[ModelPreferenceKey])

	assert.Error(t, p.Set(""))
	assert.Equal(t, 1, store.sets)
}

func TestModelPreference_SetKeepsValueWhenPersistFails(t *testing.T) {
	store := &memoryPreferences{setErr: errors.New("read-only")}
	p := NewModelPreference(store, environment.DefaultModel, observability.Discard())

	require.Error(t, p.Set("gemma2-9b-it"))
	assert.Equal(t, "gemma2-9b-it", p.Get())
}
