package peerlink

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPipePair(t *testing.T) (*Link, *Link) {
	t.Helper()
	a, b := net.Pipe()
	return New(a), New(b)
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := newPipePair(t)
	defer client.Close()
	defer server.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, client.Send("/sync {}"))
	}()

	frame, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, "/sync {}", frame)
	<-done
}

func TestRecvReassemblesSplitWrites(t *testing.T) {
	client, server := newPipePair(t)
	defer client.Close()
	defer server.Close()

	go func() {
		_, _ = client.conn.Write([]byte("{\"x\":1,"))
		time.Sleep(5 * time.Millisecond)
		_, _ = client.conn.Write([]byte("\"y\":2}\n"))
	}()

	frame, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, `{"x":1,"y":2}`, frame)
}

func TestRecvDetectsPredecessorLost(t *testing.T) {
	client, server := newPipePair(t)
	defer server.Close()

	require.NoError(t, client.Close())

	_, err := server.Recv()
	assert.ErrorIs(t, err, ErrPredecessorLost)
}

func TestSendAfterCloseIsSuccessorLost(t *testing.T) {
	client, server := newPipePair(t)
	defer client.Close()
	require.NoError(t, server.Close())

	err := client.Send("/disconnect 3")
	assert.ErrorIs(t, err, ErrSuccessorLost)
}
