package paramstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeGetter is a minimal Getter stub.
type fakeGetter struct {
	vals  []string
	errs  []error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, _ string) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i >= len(f.vals) {
		i = len(f.vals) - 1
	}
	return f.vals[i], nil
}

func TestNewTokenSource_Validates(t *testing.T) {
	_, err := NewTokenSource(nil, "/coach/token")
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil")

	_, err = NewTokenSource(&fakeGetter{}, " ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty")
}

func TestTokenSource_FetchedOnce(t *testing.T) {
	g := &fakeGetter{vals: []string{`{"token":"sk-from-ssm"}`}}
	src, err := NewTokenSource(g, "/coach/token")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		key, err := src.APIKey(context.Background())
		require.NoError(t, err)
		require.Equal(t, "sk-from-ssm", key)
	}
	require.Equal(t, 1, g.calls, "SSM must only be called once per process lifetime")
}

func TestTokenSource_FailureIsRetried(t *testing.T) {
	g := &fakeGetter{
		errs: []error{errors.New("ssm unavailable")},
		vals: []string{"", `{"token":"sk-second"}`},
	}
	src, err := NewTokenSource(g, "/coach/token")
	require.NoError(t, err)

	_, err = src.APIKey(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "ssm unavailable")

	key, err := src.APIKey(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sk-second", key)
}

func TestParseToken(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    string
		wantErr string
	}{
		{name: "json", raw: `{"token":"sk-json"}`, want: "sk-json"},
		{name: "bare", raw: " sk-bare \n", want: "sk-bare"},
		{name: "missing field", raw: `{"other":"value"}`, wantErr: "API token is empty"},
		{name: "malformed", raw: `{"broken`, wantErr: "unmarshal"},
		{name: "empty", raw: "  ", wantErr: "API token is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseToken(tc.raw)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
