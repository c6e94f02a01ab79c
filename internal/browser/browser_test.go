// internal/browser/browser_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Selector --

func TestParseSelector(t *testing.T) {
	tests := []struct {
		in   string
		want Selector
	}{
		{"#sb_form_q", Selector{Kind: ByCSS, Value: "#sb_form_q"}},
		{"text=Avançar", Selector{Kind: ByText, Value: "Avançar"}},
		{"text= Pular por enquanto ", Selector{Kind: ByText, Value: "Pular por enquanto"}},
		{"css=div > a", Selector{Kind: ByCSS, Value: "div > a"}},
		{"", Selector{Kind: ByCSS}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseSelector(tt.in)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "text=Sim", Text("Sim").String())
	assert.Equal(t, "#id_s", CSS("#id_s").String())
	assert.True(t, ParseSelector("  ").IsZero())
}

// -- State --

func sampleState() *State {
	return &State{
		Cookies: []Cookie{
			{Name: "_U", Value: "token", Domain: ".bing.com", Path: "/", Expires: 1893456000, HTTPOnly: true, Secure: true, SameSite: "None"},
		},
		Origins: []OriginState{
			{Origin: "https://www.bing.com", LocalStorage: []NameValue{{Name: "theme", Value: "dark"}}},
		},
	}
}

func TestStateEncoding(t *testing.T) {
	t.Run("storageState field names", func(t *testing.T) {
		data, err := EncodeState(sampleState())
		require.NoError(t, err)

		s := string(data)
		assert.Contains(t, s, `"httpOnly": true`)
		assert.Contains(t, s, `"sameSite": "None"`)
		assert.Contains(t, s, `"localStorage": [`)

		decoded, err := DecodeState(data)
		require.NoError(t, err)
		if diff := cmp.Diff(sampleState(), decoded); diff != "" {
			t.Errorf("decoded state mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("nil slices encode as empty arrays", func(t *testing.T) {
		data, err := EncodeState(&State{Cookies: []Cookie{{Name: "a", Value: "b"}}})
		require.NoError(t, err)
		assert.Contains(t, string(data), `"origins": []`)
	})

	t.Run("empty state is rejected on decode", func(t *testing.T) {
		_, err := DecodeState([]byte(`{"cookies":[],"origins":[]}`))
		assert.ErrorIs(t, err, ErrEmptyState)
	})

	t.Run("malformed document", func(t *testing.T) {
		_, err := DecodeState([]byte(`{"cookies":`))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrEmptyState)
	})
}

func TestStateClone(t *testing.T) {
	orig := sampleState()
	clone := orig.Clone()
	clone.Cookies[0].Value = "changed"
	clone.Origins[0].LocalStorage[0].Value = "light"

	assert.Equal(t, "token", orig.Cookies[0].Value)
	assert.Equal(t, "dark", orig.Origins[0].LocalStorage[0].Value)
	assert.Nil(t, (*State)(nil).Clone())
	assert.True(t, (*State)(nil).IsEmpty())
}

// -- Sleep --

func TestSleep(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
