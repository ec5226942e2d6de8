package mediadb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.Append([]Entry{
		{URL: "file:///a.mp3", Mime: "audio/mpeg", Title: "Song A", Artist: "Alice", Genre: "rock"},
		{URL: "file:///b.mp3", Mime: "audio/mpeg", Title: "Song B", Artist: "Bob", Genre: "jazz"},
		{URL: "file:///c.mp3", Mime: "audio/mpeg", Title: "Song C", Artist: "Alice", Genre: "rock"},
	})
	return m
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	m := NewMemory()
	ids := m.Append([]Entry{{Title: "one"}, {Title: "two"}})
	assert.Equal(t, []int{1, 2}, ids)
	assert.Equal(t, 2, m.Count())
}

func TestNextAdvancesInOrder(t *testing.T) {
	m := seeded(t)
	id, ok := m.Next(1, Options{})
	require.True(t, ok)
	assert.Equal(t, 2, id)
}

func TestNextEndOfListNoLoop(t *testing.T) {
	m := seeded(t)
	_, ok := m.Next(3, Options{Loop: false})
	assert.False(t, ok)
}

func TestNextEndOfListWithLoop(t *testing.T) {
	m := seeded(t)
	id, ok := m.Next(3, Options{Loop: true})
	require.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestNextEmptyCatalog(t *testing.T) {
	m := NewMemory()
	_, ok := m.Next(0, Options{})
	assert.False(t, ok)
}

func TestPlayInvokesCallbackWithURLAndMime(t *testing.T) {
	m := seeded(t)
	var gotURL, gotMime string
	err := m.Play(1, func(url string, info Entry, mime string) {
		gotURL, gotMime = url, mime
	})
	require.NoError(t, err)
	assert.Equal(t, "file:///a.mp3", gotURL)
	assert.Equal(t, "audio/mpeg", gotMime)
}

func TestPlayUnknownIDReturnsNotFound(t *testing.T) {
	m := seeded(t)
	err := m.Play(999, func(string, Entry, string) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetSetInfoRemove(t *testing.T) {
	m := seeded(t)

	e, err := m.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "Song A", e.Title)

	err = m.SetInfo(1, Entry{Title: "Renamed"})
	require.NoError(t, err)
	e, _ = m.Get(1)
	assert.Equal(t, "Renamed", e.Title)
	assert.Equal(t, 1, e.ID, "SetInfo must preserve the entry's id")

	require.NoError(t, m.Remove(1))
	_, err = m.Get(1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 2, m.Count())
}

func TestSetInfoUnknownID(t *testing.T) {
	m := seeded(t)
	assert.ErrorIs(t, m.SetInfo(999, Entry{}), ErrNotFound)
}

func TestRemoveUnknownID(t *testing.T) {
	m := seeded(t)
	assert.ErrorIs(t, m.Remove(999), ErrNotFound)
}

func TestListPagination(t *testing.T) {
	m := seeded(t)

	all := m.List(0, 0)
	assert.Len(t, all, 3)

	page := m.List(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, "Song B", page[0].Title)

	assert.Nil(t, m.List(10, 1))
}

func TestFilterByArtistAndGenre(t *testing.T) {
	m := seeded(t)

	byArtist := m.Filter(Options{Artist: "alice"})
	assert.Len(t, byArtist, 2)

	byGenre := m.Filter(Options{Genre: "jazz"})
	require.Len(t, byGenre, 1)
	assert.Equal(t, "Song B", byGenre[0].Title)

	byKeyword := m.Filter(Options{Keyword: "song c"})
	require.Len(t, byKeyword, 1)
	assert.Equal(t, "Song C", byKeyword[0].Title)
}

func TestLoadYAMLRoundTrip(t *testing.T) {
	m := seeded(t)
	data, err := m.DumpYAML()
	require.NoError(t, err)

	m2, err := LoadYAML(data)
	require.NoError(t, err)
	assert.Equal(t, m.Count(), m2.Count())

	e, err := m2.Get(1)
	require.NoError(t, err)
	assert.Equal(t, "Song A", e.Title)
}

func TestLoadYAMLInvalidDocument(t *testing.T) {
	_, err := LoadYAML([]byte("not: [valid, yaml, entries"))
	assert.Error(t, err)
}
