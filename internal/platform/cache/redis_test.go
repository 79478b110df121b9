package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr(), DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), Key("probe"), "1", 0).Err())
	mr.Select(2)
	require.True(t, mr.Exists("odyssey-stock:probe"))
}

func TestNewFailsWithoutServer(t *testing.T) {
	_, err := New(context.Background(), Options{Addr: "127.0.0.1:1", PingTimeout: time.Second})
	require.Error(t, err)

	_, err = New(context.Background(), Options{})
	require.Error(t, err)
}

func TestAsynqOptCarriesCredentials(t *testing.T) {
	opt := Options{Addr: "redis:6379", Password: "secret", DB: 3}.AsynqOpt()
	require.Equal(t, "redis:6379", opt.Addr)
	require.Equal(t, "secret", opt.Password)
	require.Equal(t, 3, opt.DB)
}
