package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/citibike/pkg/batch/adapter/storage/config"
	config "github.com/tigerroll/citibike/pkg/batch/core/config"
)

func TestClientOptions(t *testing.T) {
	assert.Empty(t, ClientOptions(storageConfig.StorageConfig{}))
	assert.Len(t, ClientOptions(storageConfig.StorageConfig{CredentialsFile: "/etc/key.json"}), 1)
	assert.Len(t, ClientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
}

func TestGCSProviderOpensEmulatorConnection(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Citibike.Adapter.Storage = map[string]interface{}{
		"archive":  map[string]interface{}{"type": "gcs", "bucket_name": "citibike-staging", "endpoint": "http://127.0.0.1:4443/storage/v1/"},
		"nobucket": map[string]interface{}{"type": "gcs"},
	}
	p := NewGCSProvider(cfg)
	assert.Equal(t, ProviderType, p.Type())

	conn, err := p.GetConnection("archive")
	require.NoError(t, err)
	assert.Equal(t, "citibike-staging", conn.DefaultBucket())

	same, err := p.GetConnection("archive")
	require.NoError(t, err)
	assert.Same(t, conn, same)

	_, err = p.GetConnection("nobucket")
	assert.ErrorContains(t, err, "bucket_name must be specified")
	assert.NoError(t, p.CloseAll())
}
