package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tendercrm/internal/client/client"
	"github.com/dmitrijs2005/tendercrm/internal/server/auth"
	"github.com/dmitrijs2005/tendercrm/internal/server/config"
)

func testConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.InMemory = true
	c.LogLevel = "error"
	return &c
}

func TestNewApp_InvalidConfig(t *testing.T) {
	c := testConfig()
	c.SecretKey = ""

	_, err := NewApp(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret_key")
}

func TestApp_ServeAndShutdown(t *testing.T) {
	c := testConfig()
	app, err := NewApp(c)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, ln) }()

	key, err := auth.GenerateKey(auth.RoleAnon, []byte(c.SecretKey), time.Minute)
	require.NoError(t, err)
	rc, err := client.TryCreateClient(client.Config{BaseURL: "http://" + ln.Addr().String(), APIKey: key, Timeout: time.Second})
	require.NoError(t, err)
	defer rc.Close()

	require.Eventually(t, func() bool {
		return rc.Ping(context.Background()) == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestApp_RunBadAddress(t *testing.T) {
	c := testConfig()
	c.EndpointAddr = "256.0.0.1:bad"
	app, err := NewApp(c)
	require.NoError(t, err)

	assert.Error(t, app.Run(context.Background()))
}
