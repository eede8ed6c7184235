package sink_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-alertstream/pkg/messagepipeline"
	"github.com/illmade-knight/go-alertstream/pkg/sink"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestPubsubSink(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	// Arrange
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.CreateTopic(ctx, "accepted-alerts")
	require.NoError(t, err)

	producer, err := messagepipeline.NewGooglePubsubProducer(ctx,
		messagepipeline.NewGooglePubsubProducerDefaults("accepted-alerts"), client, zerolog.Nop())
	require.NoError(t, err)
	s := sink.NewPubsubSink(producer, "objectId", zerolog.Nop())

	// Act
	err = s.Save(ctx, types.Record{"objectId": "ZTF24xyz", "magpsf": 19.25})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Assert
	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "ZTF24xyz", msgs[0].Attributes["objectId"])
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, 19.25, got["magpsf"])
}
