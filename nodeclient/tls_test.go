package nodeclient

import (
	"context"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTLSConfig(t *testing.T) {
	url, srv := startTLSNode(t, echoNode)
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw})

	t.Run("trusted CA", func(t *testing.T) {
		caFile := filepath.Join(t.TempDir(), "ca.pem")
		require.NoError(t, os.WriteFile(caFile, caPEM, 0o600))
		cfg, err := LoadTLSConfig(caFile, "", "")
		require.NoError(t, err)
		require.NotNil(t, cfg.RootCAs)
		assert.Empty(t, cfg.Certificates)

		httpClient := &http.Client{Transport: &http.Transport{TLSClientConfig: cfg}}
		c := startConnected(t, url, WithDialer(WebSocketDialer(httpClient)))

		res, err := c.Call(context.Background(), "echo", []int{1, 2})
		require.NoError(t, err)
		assert.JSONEq(t, `[1,2]`, string(res))
	})

	t.Run("untrusted server", func(t *testing.T) {
		cfg, err := TLSConfig(nil, nil, nil)
		require.NoError(t, err)

		dial := WebSocketDialer(&http.Client{Transport: &http.Transport{TLSClientConfig: cfg}})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = dial(ctx, url)
		require.Error(t, err)
	})

	t.Run("invalid inputs", func(t *testing.T) {
		_, err := TLSConfig([]byte("not a pem"), nil, nil)
		assert.Error(t, err)

		_, err = TLSConfig(caPEM, []byte("cert"), nil)
		assert.Error(t, err)

		_, err = LoadTLSConfig(filepath.Join(t.TempDir(), "missing.pem"), "", "")
		assert.Error(t, err)
	})
}

