package pru

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, fn string) {
	require.NoError(t, os.WriteFile(fn, []byte{0}, 0644))
}

func TestLocateFirmware(t *testing.T) {
	partial, complete := t.TempDir(), t.TempDir()
	touch(t, filepath.Join(partial, MasterFirmware))
	touch(t, filepath.Join(complete, MasterFirmware))
	touch(t, filepath.Join(complete, SlaveFirmware))

	dir, err := LocateFirmware(partial, complete)
	require.NoError(t, err)
	require.Equal(t, complete, dir)

	_, err = LocateFirmware(partial)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestFirmwarePath(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, SlaveFirmware))
	fn, err := FirmwarePath(dir, SlaveFirmware)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, SlaveFirmware), fn)

	_, err = FirmwarePath(dir, MasterFirmware)
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestFirmwareName(t *testing.T) {
	require.Equal(t, "pru-spi/"+MasterFirmware, firmwareName("/lib/firmware/pru-spi/"+MasterFirmware))
	require.Equal(t, SlaveFirmware, firmwareName("/opt/pru-firmware/"+SlaveFirmware))
}

func TestPins(t *testing.T) {
	require.Equal(t, "P9_27", MasterPins.CS)
	require.Equal(t, "P8_45", SlavePins.MOSI)
	require.Greater(t, DataRAMSize, ContextOffset+ContextSize+16)
}

func TestConfigOpeners(t *testing.T) {
	conf := NewConfig()
	conf.Simulate = true
	openMaster, openSlave := conf.Openers()
	m, err := openMaster()
	require.NoError(t, err)
	s, err := openSlave()
	require.NoError(t, err)
	require.IsType(t, &Sim{}, m)
	require.NotSame(t, m.Context(), s.Context())

	conf = NewConfig()
	conf.Simulate = false
	conf.Master.UIO = filepath.Join(t.TempDir(), "uio-missing")
	conf.Master.RemoteProc = ""
	openMaster, _ = conf.Openers()
	_, err = openMaster()
	require.True(t, errors.Is(err, ErrUnavailable))
}
