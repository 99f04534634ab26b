package smshub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/smshub/gateways/devel"
	"github.com/kart-io/smshub/gateways/memory"
	"github.com/kart-io/smshub/pkg/config"
	"github.com/kart-io/smshub/pkg/errors"
	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/logger"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
	"github.com/kart-io/smshub/pkg/routing"
)

func newTestClient(t *testing.T, cfgOpts []config.Option, clientOpts ...Option) Client {
	t.Helper()
	base := []config.Option{
		config.WithLogger(logger.Discard),
		config.WithMemoryQueue(64, 2),
		config.WithTimeout(5 * time.Second),
	}
	cfg, err := config.New(append(base, cfgOpts...)...)
	require.NoError(t, err)

	clientOpts = append([]Option{
		WithPlugin(memory.PluginID, memory.Factory()),
		WithPlugin(devel.PluginID, devel.Factory(logger.Discard)),
	}, clientOpts...)

	client, err := New(cfg, clientOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func memoryDriver(t *testing.T, client Client, id string) *memory.Gateway {
	t.Helper()
	impl, ok := client.(*clientImpl)
	require.True(t, ok)
	gw, err := impl.registry.Gateway(id)
	require.NoError(t, err)
	mem, ok := gw.(*memory.Gateway)
	require.True(t, ok)
	return mem
}

func TestSend_SingleGateway(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
		config.WithDefaultGateway("mem"),
	})

	msg := message.New().SetBody("hi").SetRecipients([]string{"+15550001", "+15550002"})
	receipt, err := client.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, receipt.IsSuccess())
	assert.Equal(t, 2, receipt.Total)
	assert.Equal(t, msg.ID, receipt.SubmissionID)

	sent := memoryDriver(t, client, "mem").Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"+15550001", "+15550002"}, sent[0].Recipients)
}

func TestSend_FanOutAcrossGateways(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "us", Plugin: memory.PluginID}),
		config.WithGateway(gateway.Config{ID: "uk", Plugin: memory.PluginID}),
	}, WithResolver(routing.NewPrefixResolver(map[string]string{
		"+1":  "us",
		"+44": "uk",
	}, 10)))

	msg := message.New().SetBody("hi").SetRecipients([]string{"+15550001", "+442071234567"})
	receipt, err := client.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, receipt.IsSuccess())
	assert.Equal(t, 2, receipt.Total)

	usSent := memoryDriver(t, client, "us").Sent()
	require.Len(t, usSent, 1)
	assert.Equal(t, []string{"+15550001"}, usSent[0].Recipients)

	ukSent := memoryDriver(t, client, "uk").Sent()
	require.Len(t, ukSent, 1)
	assert.Equal(t, []string{"+442071234567"}, ukSent[0].Recipients)
}

func TestSend_ChunksByGatewayLimit(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{
			ID:       "mem",
			Plugin:   memory.PluginID,
			Settings: map[string]interface{}{memory.SettingMaxRecipients: 2},
		}),
		config.WithDefaultGateway("mem"),
	})

	msg := message.New().SetRecipients([]string{"+1", "+2", "+3", "+4", "+5"})
	receipt, err := client.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 5, receipt.Total)

	sent := memoryDriver(t, client, "mem").Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"+1", "+2"}, sent[0].Recipients)
	assert.Equal(t, []string{"+3", "+4"}, sent[1].Recipients)
	assert.Equal(t, []string{"+5"}, sent[2].Recipients)
}

func TestSend_PartialFailure(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{
			ID:       "dev",
			Plugin:   devel.PluginID,
			Settings: map[string]interface{}{devel.SettingFailPrefix: "+99"},
		}),
		config.WithDefaultGateway("dev"),
	})

	msg := message.New().SetRecipients([]string{"+15550001", "+995550002"})
	receipt, err := client.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.True(t, receipt.IsPartial())
	assert.Equal(t, 1, receipt.Successful)
	assert.Equal(t, 1, receipt.Failed)
	assert.Equal(t, []string{"simulated failure"}, receipt.Errors())
}

func TestSend_NoRouteFailsBeforeDispatch(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
	})

	msg := message.New().AddRecipient("+15550001")
	receipt, err := client.Send(context.Background(), msg)
	assert.Nil(t, receipt)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoGatewayForRecipient, errors.CodeOf(err))
	assert.Empty(t, memoryDriver(t, client, "mem").Sent())
}

func TestSendAsync_WorkerDispatches(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
		config.WithDefaultGateway("mem"),
	})

	msg := message.New().SetBody("async").AddRecipient("+15550001")
	ids, err := client.SendAsync(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	mem := memoryDriver(t, client, "mem")
	require.Eventually(t, func() bool {
		return len(mem.Sent()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "async", mem.Sent()[0].Body)
}

func TestSendAsync_ScheduledMessageHeldBack(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
		config.WithDefaultGateway("mem"),
	})

	msg := message.New().AddRecipient("+15550001").ScheduleAt(time.Now().Add(300 * time.Millisecond))
	_, err := client.SendAsync(context.Background(), msg)
	require.NoError(t, err)

	mem := memoryDriver(t, client, "mem")
	assert.Empty(t, mem.Sent())

	require.Eventually(t, func() bool {
		return len(mem.Sent()) == 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSendAsync_ScheduleAwareGatewaySendsImmediately(t *testing.T) {
	// The devel driver declares ScheduleAware, so the queue must not hold
	// scheduled messages back for it.
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "dev", Plugin: devel.PluginID}),
		config.WithDefaultGateway("dev"),
	})

	msg := message.New().AddRecipient("+15550001").ScheduleAt(time.Now().Add(time.Hour))
	ids, err := client.SendAsync(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	impl := client.(*clientImpl)
	require.Eventually(t, func() bool {
		return impl.workers.Processed() == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestIncoming(t *testing.T) {
	var mu sync.Mutex
	var received []*message.Message
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
	}, WithIncomingHandler(func(_ context.Context, msg *message.Message, _ *report.Result) error {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		return nil
	}))

	msg := message.NewIncoming().SetSender("+15550009").AddRecipient("+15550001").SetBody("hello").SetGateway("mem")
	receipt, err := client.Incoming(context.Background(), []*message.Message{msg})
	require.NoError(t, err)
	assert.Equal(t, 1, receipt.Total)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "hello", received[0].Body)

	assert.Len(t, memoryDriver(t, client, "mem").Received(), 1)
}

func TestPullReports(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
		config.WithDefaultGateway("mem"),
	})

	// Send first so the dispatcher persists reconcilable reports.
	msg := message.New().AddRecipient("+15550001")
	receipt, err := client.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, 1, receipt.Total)
	providerID := receipt.Results[0].MessageID
	require.NotEmpty(t, providerID)

	mem := memoryDriver(t, client, "mem")
	mem.QueueReport(report.NewDeliveryReport("+15550001", report.StatusDelivered).WithMessageID(providerID))
	mem.QueueReport(report.NewDeliveryReport("+15550002", report.StatusDelivered).WithMessageID("unknown-id"))

	outcome, err := client.PullReports(context.Background(), "mem", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Updated)
	assert.Equal(t, 1, outcome.Dropped)
}

func TestPullReports_Unsupported(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "dev", Plugin: devel.PluginID}),
	})

	_, err := client.PullReports(context.Background(), "dev", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrUnsupportedOperation, errors.CodeOf(err))
}

func TestHealth(t *testing.T) {
	client := newTestClient(t, []config.Option{
		config.WithGateway(gateway.Config{ID: "mem", Plugin: memory.PluginID}),
		config.WithDefaultGateway("mem"),
	})

	// Instantiate the gateway so health has something to report.
	_, err := client.Send(context.Background(), message.New().AddRecipient("+15550001"))
	require.NoError(t, err)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Gateways["mem"])
	assert.Equal(t, 0, health.QueueDepth)
}

func TestNew_UnknownPluginInConfig(t *testing.T) {
	cfg, err := config.New(
		config.WithLogger(logger.Discard),
		config.WithGateway(gateway.Config{ID: "gw", Plugin: "nope"}),
	)
	require.NoError(t, err)

	client, err := New(cfg)
	assert.Nil(t, client)
	require.Error(t, err)
	assert.Equal(t, errors.ErrPluginNotFound, errors.CodeOf(err))
}
