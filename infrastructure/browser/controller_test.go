package browser

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"evalconsole/infrastructure/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
)

func TestConsoleText(t *testing.T) {
	args := []*proto.RuntimeRemoteObject{
		{Type: proto.RuntimeRemoteObjectTypeString, Value: gson.New("WorkArena - top: [10:00:00] ready")},
		{Type: proto.RuntimeRemoteObjectTypeNumber, Value: gson.New(3), Description: "3"},
		{Type: proto.RuntimeRemoteObjectTypeBoolean, Value: gson.New(true)},
	}
	assert.Equal(t, "WorkArena - top: [10:00:00] ready 3 true", consoleText(args))
	assert.Equal(t, "", consoleText(nil))
}

func TestPageSet_TracksOpenedAndClosedPages(t *testing.T) {
	s := &pageSet{}
	first := &rod.Page{TargetID: "first"}
	popup := &rod.Page{TargetID: "popup"}

	assert.True(t, s.add(first))
	assert.True(t, s.add(popup))
	assert.False(t, s.add(&rod.Page{TargetID: "popup"}), "a target is tracked once")
	assert.Equal(t, []*rod.Page{first, popup}, s.all())
	assert.Same(t, popup, s.page(), "the newest page becomes current")

	s.remove("popup")
	assert.Equal(t, []*rod.Page{first}, s.all())
	assert.Same(t, first, s.page())

	s.remove("first")
	assert.Empty(t, s.all())
	assert.Nil(t, s.page())
}

func TestIsClosedErr(t *testing.T) {
	assert.True(t, isClosedErr(errors.New("Target page, context or browser has been closed")))
	assert.True(t, isClosedErr(errors.New("target closed")))
	assert.False(t, isClosedErr(errors.New("timeout exceeded")))
}

func TestFindChromeBinary_EnvOverride(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(bin, []byte{}, 0755))
	t.Setenv("CHROME_BINARY_PATH", bin)

	assert.Equal(t, bin, findChromeBinary())
}

func TestOpen_UnknownBackend(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	_, err := Open(&config.Config{Backend: "selenium"}, logger, nil)
	assert.ErrorContains(t, err, "unknown browser backend")
}
