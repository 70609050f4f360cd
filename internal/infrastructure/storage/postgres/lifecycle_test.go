package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	connectErr    error
	disconnectErr error
	connects      int
	disconnects   int
}

func (c *fakeClient) Connect(ctx context.Context) error {
	c.connects++
	return c.connectErr
}

func (c *fakeClient) Disconnect(ctx context.Context) error {
	c.disconnects++
	return c.disconnectErr
}

func TestWithClient_ReleasesOnSuccess(t *testing.T) {
	c := &fakeClient{}

	err := WithClient(context.Background(), c, func(ctx context.Context) error {
		assert.Equal(t, 1, c.connects)
		assert.Equal(t, 0, c.disconnects, "release must not run before the body finishes")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, c.disconnects)
}

func TestWithClient_ReleasesOnFailure(t *testing.T) {
	c := &fakeClient{}
	bodyErr := errors.New("body failed")

	err := WithClient(context.Background(), c, func(ctx context.Context) error {
		return bodyErr
	})

	assert.Equal(t, bodyErr, err)
	assert.Equal(t, 1, c.disconnects)
}

func TestWithClient_ConnectFailureSkipsRelease(t *testing.T) {
	c := &fakeClient{connectErr: errors.New("handshake refused")}

	err := WithClient(context.Background(), c, func(ctx context.Context) error {
		t.Fatal("body must not run when connect fails")
		return nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, c.connectErr)
	assert.Equal(t, 0, c.disconnects)
}

func TestWithClient_DisconnectFailureNeverMasksOutcome(t *testing.T) {
	c := &fakeClient{disconnectErr: errors.New("close timed out")}

	err := WithClient(context.Background(), c, func(ctx context.Context) error {
		return nil
	})
	assert.NoError(t, err, "release failure must not replace a successful result")

	bodyErr := errors.New("body failed")
	err = WithClient(context.Background(), c, func(ctx context.Context) error {
		return bodyErr
	})
	assert.Equal(t, bodyErr, err, "release failure must not replace the body's error")
}

func TestWithClient_ReleasesOnCancellation(t *testing.T) {
	c := &fakeClient{}
	ctx, cancel := context.WithCancel(context.Background())

	err := WithClient(ctx, c, func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, c.disconnects)
}
