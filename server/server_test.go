// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/z5labs/weather/health"
)

func TestRuntime_Run(t *testing.T) {
	t.Run("will serve until the context is cancelled", func(t *testing.T) {
		ls, err := net.Listen("tcp", "127.0.0.1:0")
		require.Nil(t, err)

		readiness := new(health.Binary)
		readiness.Set(false)

		rt := New(
			Listener(ls),
			Readiness(readiness),
			Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "OK")
			})),
		)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			errCh <- rt.Run(ctx)
		}()

		var resp *http.Response
		require.Eventually(t, func() bool {
			resp, err = http.Get("http://" + ls.Addr().String() + "/")
			return err == nil
		}, 5*time.Second, 10*time.Millisecond)
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		require.Nil(t, err)
		require.Equal(t, "OK", string(b))
		require.True(t, readiness.Healthy(ctx))

		cancel()

		select {
		case err := <-errCh:
			require.Nil(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not shut down")
		}
		require.False(t, readiness.Healthy(context.Background()))
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the port is already in use", func(t *testing.T) {
			ls, err := net.Listen("tcp", "127.0.0.1:0")
			require.Nil(t, err)
			defer ls.Close()

			rt := New()
			rt.listen = func(network, addr string) (net.Listener, error) {
				return net.Listen(network, ls.Addr().String())
			}

			err = rt.Run(context.Background())
			require.NotNil(t, err)
		})
	})
}
