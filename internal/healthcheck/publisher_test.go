package healthcheck

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/edgescan/internal/event"
	"github.com/HerbHall/edgescan/internal/testutil"
	"github.com/HerbHall/edgescan/pkg/models"
)

func TestPublisher_WritesOnlyOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gatus", "config.yaml")
	bus := testutil.NewRecordingBus()
	p := NewPublisher(path, DefaultOptions("lab"), bus, zap.NewNop())
	ctx := context.Background()

	res, err := p.Publish(ctx, nil)
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 1, res.Endpoints)

	res, err = p.Publish(ctx, nil)
	require.NoError(t, err)
	assert.False(t, res.Written, "identical content must not be rewritten")

	cam := testutil.NewDevice(testutil.WithMonitored(true))
	res, err = p.Publish(ctx, []models.Device{cam})
	require.NoError(t, err)
	assert.True(t, res.Written)
	assert.Equal(t, 2, res.Endpoints)
	assert.Equal(t, 1, res.Monitored)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tcp://"+cam.IP+":554")

	assert.Equal(t, []string{event.TopicHealthcheckPublished, event.TopicHealthcheckPublished}, bus.Topics())
}

func TestPublisher_SkipsWhenFileAlreadyCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := Generate(nil, DefaultOptions("lab")).Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p := NewPublisher(path, DefaultOptions("lab"), nil, zap.NewNop())
	res, err := p.Publish(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Written)
}

func TestPublisher_WriteFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	p := NewPublisher(filepath.Join(blocker, "config.yaml"), DefaultOptions("lab"), nil, zap.NewNop())
	_, err := p.Publish(context.Background(), nil)
	assert.Error(t, err)
}
