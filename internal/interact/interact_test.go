package interact

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/burstline/internal/browser"
	"github.com/xkilldash9x/burstline/internal/browser/browsertest"
)

func newPage(t *testing.T, screen browsertest.Screen) (*browsertest.Launcher, browser.Page) {
	t.Helper()
	l := &browsertest.Launcher{ScreenFor: func(browser.Profile) browsertest.Screen { return screen }}
	bctx, err := l.Launch(context.Background(), browser.Profile{Name: "desktop"})
	require.NoError(t, err)
	page, err := bctx.NewPage(context.Background())
	require.NoError(t, err)
	return l, page
}

// -- Probe --

func TestProbe(t *testing.T) {
	ctx := context.Background()
	l, page := newPage(t, browsertest.Screen{Visible: map[string]bool{"#id_s": true}})

	loc, ok := Probe(ctx, page, browser.CSS("#id_s"), time.Second)
	assert.True(t, ok)
	assert.NotNil(t, loc)

	loc, ok = Probe(ctx, page, browser.Text("Sim"), 3*time.Second)
	assert.False(t, ok)
	assert.Nil(t, loc)

	probes := l.Filter(browsertest.KindProbe)
	require.Len(t, probes, 2)
	assert.Equal(t, 3*time.Second, probes[1].Duration, "a miss is bounded by the probe timeout")

	_, ok = Probe(ctx, page, browser.Selector{}, time.Second)
	assert.False(t, ok)
	assert.Len(t, l.Filter(browsertest.KindProbe), 2, "an unset selector is never probed")
}

func TestProbeErrorIsAbsence(t *testing.T) {
	_, page := newPage(t, browsertest.Screen{
		Visible: map[string]bool{"#id_s": true},
		Errors:  map[browsertest.Kind]map[string]error{browsertest.KindProbe: {"#id_s": errors.New("frame detached")}},
	})
	_, ok := Probe(context.Background(), page, browser.CSS("#id_s"), time.Second)
	assert.False(t, ok)
}

// -- AcceptIfVisible --

func TestAcceptIfVisible(t *testing.T) {
	ctx := context.Background()

	t.Run("visible element is clicked", func(t *testing.T) {
		l, page := newPage(t, browsertest.Screen{Visible: map[string]bool{"#bnp_btn_accept": true}})
		assert.True(t, AcceptIfVisible(ctx, zap.NewNop(), page, browser.CSS("#bnp_btn_accept"), time.Second))
		clicks := l.Filter(browsertest.KindClick)
		require.Len(t, clicks, 1)
		assert.Equal(t, "#bnp_btn_accept", clicks[0].Target)
	})

	t.Run("absent element is not clicked", func(t *testing.T) {
		l, page := newPage(t, browsertest.Screen{})
		assert.False(t, AcceptIfVisible(ctx, zap.NewNop(), page, browser.CSS("#bnp_btn_accept"), time.Second))
		assert.Empty(t, l.Filter(browsertest.KindClick))
	})

	t.Run("click failure is swallowed and logged", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		_, page := newPage(t, browsertest.Screen{
			Visible: map[string]bool{"text=Sim": true},
			Errors:  map[browsertest.Kind]map[string]error{browsertest.KindClick: {"text=Sim": errors.New("element detached")}},
		})
		assert.False(t, AcceptIfVisible(ctx, zap.New(core), page, browser.Text("Sim"), time.Second))
		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
		assert.Equal(t, "text=Sim", entry.ContextMap()["selector"])
	})
}

// -- Present --

func TestPresent(t *testing.T) {
	ctx := context.Background()
	_, page := newPage(t, browsertest.Screen{
		Visible: map[string]bool{"#mHamburger": true},
		Counts:  map[string]int{"#usernameEntry": 2},
	})

	assert.True(t, Present(ctx, page, browser.CSS("#mHamburger")))
	assert.True(t, Present(ctx, page, browser.CSS("#usernameEntry")))
	assert.False(t, Present(ctx, page, browser.CSS("#hb_s")))
	assert.False(t, Present(ctx, page, browser.Selector{}))
}
