package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DisabledIsNoOp(t *testing.T) {
	telemetry, err := New(nil)
	require.NoError(t, err)

	ctx, span := telemetry.StartSend(context.Background(), "gw", 2)
	require.NotNil(t, span)

	assert.NotPanics(t, func() {
		telemetry.RecordSend(ctx, span, "gw", time.Now(), nil)
		telemetry.RecordReconciliation(ctx, 3, 1)
		telemetry.RecordEnqueued(ctx, 1)
		telemetry.RecordEnqueued(ctx, -1)
	})

	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func TestNew_ExplicitDisabledConfig(t *testing.T) {
	telemetry, err := New(&Config{Enabled: false, ServiceName: "smshub-test"})
	require.NoError(t, err)

	ctx, span := telemetry.StartSend(context.Background(), "gw", 1)
	telemetry.RecordSend(ctx, span, "gw", time.Now(), context.DeadlineExceeded)
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}
