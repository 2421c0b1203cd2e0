// SPDX-License-Identifier: GPL-3.0-or-later

package scenario_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZhuChongjing/NetLabX/internal/scenario"
	"github.com/ZhuChongjing/NetLabX/topo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func demoFile(t *testing.T) *scenario.File {
	t.Helper()
	f, err := scenario.Parse([]byte(demoLab))
	require.NoError(t, err)
	return f
}

func TestStoreSaveLoadList(t *testing.T) {
	st, err := scenario.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save("lab1", demoFile(t)))

	got, err := st.Load("lab1")
	require.NoError(t, err)
	assert.Equal(t, "Two Subnets", got.Name)

	infos := st.List()
	require.Len(t, infos, 1)
	assert.Equal(t, "lab1", infos[0].Name)
	assert.Equal(t, "Two Subnets", infos[0].Title)
	assert.Equal(t, 4, infos[0].Devices)
}

func TestStoreDelete(t *testing.T) {
	st, err := scenario.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save("lab1", demoFile(t)))
	require.NoError(t, st.Delete("lab1"))

	assert.Empty(t, st.List())
	_, err = st.Load("lab1")
	assert.Error(t, err)
}

func TestStoreRejectsPathEscapes(t *testing.T) {
	st, err := scenario.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	for _, name := range []string{"", "../etc/passwd", "a/b", ".hidden"} {
		_, err := st.Load(name)
		assert.Error(t, err, "name %q", name)
	}
}

func TestStoreIndexesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.yaml"), []byte(demoLab), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "short.yml"), []byte(demoLab), 0o644))
	// unreadable and foreign files are skipped, not fatal
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("{{{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	st, err := scenario.NewStore(dir, nil)
	require.NoError(t, err)
	defer st.Close()

	infos := st.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "seed", infos[0].Name)
	assert.Equal(t, "short", infos[1].Name)

	// the .yml spelling is loadable under its indexed name
	got, err := st.Load("short")
	require.NoError(t, err)
	assert.Equal(t, "Two Subnets", got.Name)
}

func TestStoreWatchSeesOutsideEdits(t *testing.T) {
	dir := t.TempDir()
	st, err := scenario.NewStore(dir, nil)
	require.NoError(t, err)
	defer st.Close()

	changed := make(chan string, 8)
	require.NoError(t, st.Watch(func(name string) { changed <- name }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dropped.yaml"), []byte(demoLab), 0o644))

	select {
	case name := <-changed:
		assert.Equal(t, "dropped", name)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the new file")
	}

	require.Eventually(t, func() bool {
		for _, info := range st.List() {
			if info.Name == "dropped" {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}

func TestStoreSaveRoundTripsThroughSnapshot(t *testing.T) {
	st, err := scenario.NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	s := demoFile(t).Snapshot()
	require.NoError(t, st.Save("copy", scenario.FromSnapshot("Copy", "", s)))

	got, err := st.Load("copy")
	require.NoError(t, err)
	require.NoError(t, got.Snapshot().Validate())
	assert.NotNil(t, got.Snapshot().DeviceByName("PC1"))
	assert.Equal(t, topo.KindRouter, got.Snapshot().DeviceByName("R1").Kind)
}
