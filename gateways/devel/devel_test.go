package devel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/smshub/pkg/gateway"
	"github.com/kart-io/smshub/pkg/message"
	"github.com/kart-io/smshub/pkg/report"
)

func newDevelGateway(t *testing.T, settings map[string]interface{}) gateway.Gateway {
	t.Helper()
	gw, err := Factory(nil)(&gateway.Config{ID: "dev", Plugin: PluginID, Settings: settings})
	require.NoError(t, err)
	return gw
}

func TestSend_FabricatesDeliveredReports(t *testing.T) {
	gw := newDevelGateway(t, nil)

	msg := message.New().SetRecipients([]string{"+15550001", "+15550002"})
	res, err := gw.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, res.Reports, 2)

	for _, rep := range res.Reports {
		assert.Equal(t, report.StatusDelivered, rep.Status)
		assert.NotEmpty(t, rep.MessageID)
	}
}

func TestSend_FailPrefix(t *testing.T) {
	gw := newDevelGateway(t, map[string]interface{}{SettingFailPrefix: "+99"})

	msg := message.New().SetRecipients([]string{"+15550001", "+995550002"})
	res, err := gw.Send(context.Background(), msg)
	require.NoError(t, err)

	ok := res.ReportFor("+15550001")
	require.NotNil(t, ok)
	assert.Equal(t, report.StatusDelivered, ok.Status)

	failed := res.ReportFor("+995550002")
	require.NotNil(t, failed)
	assert.Equal(t, report.StatusFailed, failed.Status)
	assert.Equal(t, "simulated failure", failed.StatusMessage)
}

func TestCapabilities(t *testing.T) {
	gw := newDevelGateway(t, nil)
	caps := gw.Capabilities()
	assert.Equal(t, gateway.Unlimited, caps.MaxOutgoingRecipients)
	assert.True(t, caps.ScheduleAware)
	assert.False(t, caps.SupportsIncoming)
	assert.NoError(t, gw.IsHealthy(context.Background()))
	assert.NoError(t, gw.Close())
}
