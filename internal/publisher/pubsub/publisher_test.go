package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type notice struct {
	Site string `json:"site"`
}

func (n notice) Attributes() map[string]string {
	return map[string]string{"site": n.Site}
}

func TestPublishAgainstFakeServer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "catalog-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "exports")
	require.NoError(t, err)

	pub := New(client)
	id, err := pub.Publish(ctx, "exports", notice{Site: "dalben"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"site":"dalben"}`, string(msgs[0].Data))
	assert.Equal(t, "dalben", msgs[0].Attributes["site"])

	require.NoError(t, pub.Close())
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "t", nil)
	require.Error(t, err)
	require.NoError(t, nilPub.Close())

	_, err = NewFromProject(context.Background(), "")
	require.Error(t, err)
}
