package subscription_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/illmade-knight/go-alertstream/pkg/subscription"
	"github.com/illmade-knight/go-alertstream/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	subscriberProject = "subscriber-project"
	publisherProject  = "publisher-project"
)

// setupManagerTest returns a Manager for the subscriber project and a client
// for the publisher project, both backed by one in-memory server.
func setupManagerTest(t *testing.T) (*subscription.Manager, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	subClient, err := pubsub.NewClient(ctx, subscriberProject, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = subClient.Close() })

	pubClient, err := pubsub.NewClient(ctx, publisherProject, option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pubClient.Close() })

	mgr, err := subscription.NewManager(subClient, zerolog.Nop())
	require.NoError(t, err)
	return mgr, pubClient
}

func TestManager_GetOrCreate(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	mgr, pubClient := setupManagerTest(t)

	_, err := pubClient.CreateTopic(ctx, "ztf-loop")
	require.NoError(t, err)
	ref := subscription.TopicRef{ProjectID: publisherProject, TopicID: "ztf-loop"}

	// --- Act ---
	first, err := mgr.GetOrCreate(ctx, "ztf-loop", ref)
	require.NoError(t, err)
	second, err := mgr.GetOrCreate(ctx, "ztf-loop", ref)
	require.NoError(t, err)

	// --- Assert ---
	assert.Equal(t, "projects/subscriber-project/subscriptions/ztf-loop", first.Path)
	assert.Equal(t, "https://pubsub.googleapis.com/v1/projects/subscriber-project/subscriptions/ztf-loop", first.PullURL())
	assert.Equal(t, "projects/publisher-project/topics/ztf-loop", first.Topic)
	assert.False(t, first.TopicMismatch)
	assert.Equal(t, first, second, "a second call must adopt the same subscription")

	exists, err := mgr.Exists(ctx, "ztf-loop")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestManager_GetOrCreate_AdoptsDifferentTopic(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	mgr, pubClient := setupManagerTest(t)

	_, err := pubClient.CreateTopic(ctx, "topic-a")
	require.NoError(t, err)
	_, err = pubClient.CreateTopic(ctx, "topic-b")
	require.NoError(t, err)

	_, err = mgr.Create(ctx, "my-sub", subscription.TopicRef{ProjectID: publisherProject, TopicID: "topic-a"})
	require.NoError(t, err)

	// --- Act ---
	sub, err := mgr.GetOrCreate(ctx, "my-sub", subscription.TopicRef{ProjectID: publisherProject, TopicID: "topic-b"})

	// --- Assert ---
	require.NoError(t, err)
	assert.True(t, sub.TopicMismatch)
	assert.Equal(t, "projects/publisher-project/topics/topic-a", sub.Topic)
}

func TestManager_Create_MissingTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	mgr, _ := setupManagerTest(t)

	_, err := mgr.Create(ctx, "orphan", subscription.TopicRef{ProjectID: publisherProject, TopicID: "nope"})

	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	exists, err := mgr.Exists(ctx, "orphan")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManager_Delete(t *testing.T) {
	// --- Arrange ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	mgr, pubClient := setupManagerTest(t)

	_, err := pubClient.CreateTopic(ctx, "to-delete")
	require.NoError(t, err)
	_, err = mgr.Create(ctx, "to-delete", subscription.TopicRef{ProjectID: publisherProject, TopicID: "to-delete"})
	require.NoError(t, err)

	// --- Act & Assert ---
	require.NoError(t, mgr.Delete(ctx, "to-delete"))
	exists, err := mgr.Exists(ctx, "to-delete")
	require.NoError(t, err)
	assert.False(t, exists)

	// A second delete is a no-op.
	assert.NoError(t, mgr.Delete(ctx, "to-delete"))
}

func TestDefaultTopic(t *testing.T) {
	ref := subscription.DefaultTopic("ztf-loop")
	assert.Equal(t, "projects/ardent-cycling-243415/topics/ztf-loop", ref.Path())
}

func TestNewManager_NilClient(t *testing.T) {
	_, err := subscription.NewManager(nil, zerolog.Nop())
	assert.Error(t, err)
}
