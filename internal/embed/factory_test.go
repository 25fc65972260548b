package embed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amanerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestParseProvider(t *testing.T) {
	tests := []struct {
		in      string
		want    ProviderType
		wantErr bool
	}{
		{"ollama", ProviderOllama, false},
		{" OpenAI ", ProviderOpenAI, false},
		{"static", ProviderStatic, false},
		{"", ProviderOllama, false},
		{"mlx", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProvider(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_StaticIsCachedByDefault(t *testing.T) {
	svc, err := New(Config{Provider: ProviderStatic, Dimensions: 64})
	require.NoError(t, err)

	cached, ok := svc.(*CachedService)
	require.True(t, ok)
	assert.Equal(t, 64, cached.Dimensions())
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
}

func TestNew_NegativeCacheSizeDisablesCache(t *testing.T) {
	svc, err := New(Config{Provider: ProviderStatic, CacheSize: -1})
	require.NoError(t, err)

	assert.IsType(t, &StaticEmbedder{}, svc)
}

func TestNew_OpenAIWithoutKeyIsConfigError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(Config{Provider: ProviderOpenAI})

	assert.Equal(t, amanerrors.ErrCodeConfigInvalid, amanerrors.GetCode(err))
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "bogus"})
	assert.Error(t, err)
}
