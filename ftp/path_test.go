package ftp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name       string
		workingDir string
		arg        string
		want       string
		wantErr    bool
	}{
		{name: "empty keeps cwd", workingDir: "/sub", arg: "", want: "/sub"},
		{name: "absolute", workingDir: "/sub", arg: "/other/file.txt", want: "/other/file.txt"},
		{name: "relative joins cwd", workingDir: "/sub", arg: "file.txt", want: "/sub/file.txt"},
		{name: "relative from root", workingDir: "/", arg: "a/b", want: "/a/b"},
		{name: "dot segments collapse", workingDir: "/", arg: "a/./b/../c", want: "/a/c"},
		{name: "parent inside root", workingDir: "/a/b", arg: "..", want: "/a"},
		{name: "trailing slash", workingDir: "/", arg: "dir/", want: "/dir"},
		{name: "whitespace trimmed", workingDir: "/", arg: "  f.txt  ", want: "/f.txt"},

		{name: "absolute escape", workingDir: "/", arg: "/../etc/passwd", wantErr: true},
		{name: "relative escape", workingDir: "/", arg: "../../etc", wantErr: true},
		{name: "escape then return", workingDir: "/", arg: "../a", wantErr: true},
		{name: "deep cwd still bounded", workingDir: "/a", arg: "../../x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{workingDir: tt.workingDir}
			got, err := s.resolvePath(tt.arg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscapesRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLsTime(t *testing.T) {
	recent := time.Now().Add(-time.Hour)
	assert.NotContains(t, lsTime(recent), recent.Format("2006"), "recent times show the clock, not the year")
	assert.Contains(t, lsTime(recent), recent.Format("15:04"))

	old := time.Now().Add(-365 * 24 * time.Hour)
	assert.Contains(t, lsTime(old), old.Format("2006"))
}
