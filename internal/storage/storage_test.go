package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"reportd/internal/schedule"
	logx "reportd/pkg/logx"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	return Document{
		MonitoredFiles: []string{"/data/a", "/data/b"},
		Schedules: []schedule.Record{
			{Mode: schedule.ModeOnce, Weekdays: []int{2}, Time: "07:05", Datetime: "2024-01-09 07:05"},
			{Mode: schedule.ModeWeekly, Weekdays: []int{1, 3}, Time: "09:00"},
		},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		driver := driver
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "nested", "config.db")
			st, err := Open(Config{Driver: driver, Path: path}, logx.Nop())
			require.NoError(t, err)
			defer st.Close()

			_, ok, err := st.Load(ctx)
			require.NoError(t, err)
			assert.False(t, ok, "empty store should report nothing stored")

			want := sampleDocument()
			require.NoError(t, st.Save(ctx, want))

			got, ok, err := st.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, want, got)

			// overwrite replaces the whole document
			require.NoError(t, st.Save(ctx, Document{}))
			got, ok, err = st.Load(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Empty(t, got.MonitoredFiles)
			assert.Empty(t, got.Schedules)
		})
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	require.NoError(t, err)
	_, _, err = st.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreWritesReadableJSON(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Save(context.Background(), Document{}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"monitored_files":[],"schedules":[]}`, string(b))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "tmp file should be renamed away")
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "redis", Path: "x"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
}
