package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLToDirectoryName(t *testing.T) {
	client := NewClient("", "")

	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "SSH形式",
			url:  "git@github.com:user/repo.git",
			want: "github.com/user/repo",
		},
		{
			name: "HTTPS形式",
			url:  "https://github.com/user/repo.git",
			want: "github.com/user/repo",
		},
		{
			name: ".gitなしのHTTPS形式",
			url:  "https://gitlab.example.com/group/subgroup/repo",
			want: "gitlab.example.com/group/subgroup/repo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.URLToDirectoryName(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewProviderValidation(t *testing.T) {
	client := NewClient("", "")

	t.Run("URLなしはエラー", func(t *testing.T) {
		_, err := NewProvider(client, "", "main", t.TempDir())
		assert.Error(t, err)
	})

	t.Run("refのデフォルトはmain", func(t *testing.T) {
		p, err := NewProvider(client, "https://github.com/user/repo.git", "", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "main", p.ref)
	})

	t.Run("Nameは識別用プレフィックスを含む", func(t *testing.T) {
		p, err := NewProvider(client, "https://github.com/user/repo.git", "main", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "git:https://github.com/user/repo.git", p.Name())
	})
}
