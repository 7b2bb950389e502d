package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeboard/internal/eventlog"
	"tradeboard/internal/transport"
	"tradeboard/models"
)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []transport.Message
	topics []models.Topic
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic models.Topic, msg transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	f.topics = append(f.topics, topic)
	return nil
}

var builder = Builder{DefaultClass: "QJSIM", DefaultCode: "SBER"}

func TestBuildPayload(t *testing.T) {
	cmd, err := builder.Build("Buy", "QJSIM", "SBER", "1", "215.5")
	require.NoError(t, err)
	assert.Equal(t, models.TopicBuySell, cmd.Topic)
	assert.NotEmpty(t, cmd.ID)

	body, err := cmd.Body()
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "buy", payload["operation"])
	assert.Equal(t, "QJSIM", payload["secClass"])
	assert.Equal(t, "SBER", payload["secCode"])
	assert.Equal(t, 1.0, payload["quantity"])
	assert.Equal(t, 215.5, payload["price"])
}

func TestBuildDefaultsInstrument(t *testing.T) {
	cmd, err := builder.Build("sell", "", " ", "2", "100")
	require.NoError(t, err)
	assert.Equal(t, "QJSIM", cmd.SecClass)
	assert.Equal(t, "SBER", cmd.SecCode)
	assert.Equal(t, OperationSell, cmd.Operation)
}

func TestBuildRejectsNonNumeric(t *testing.T) {
	_, err := builder.Build("buy", "QJSIM", "SBER", "abc", "100")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "quantity", verr.Field)

	_, err = builder.Build("buy", "QJSIM", "SBER", "1", "")
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "price", verr.Field)
}

func TestBuildRejectsOperation(t *testing.T) {
	_, err := builder.Build("hold", "QJSIM", "SBER", "1", "1")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "operation", verr.Field)
}

func TestPositivityIsOptIn(t *testing.T) {
	_, err := builder.Build("buy", "", "", "-1", "-5")
	assert.NoError(t, err)

	strict := Builder{DefaultClass: "QJSIM", DefaultCode: "SBER", RequirePositive: true}
	_, err = strict.Build("buy", "", "", "0", "5")
	assert.Error(t, err)
	_, err = strict.Build("buy", "", "", "1", "-5")
	assert.Error(t, err)
	_, err = strict.Build("buy", "", "", "1", "0")
	assert.NoError(t, err)
}

func TestBuildRawPassesTextUnchanged(t *testing.T) {
	text := "{'whatever': True, weird text"
	cmd := builder.BuildRaw(text)
	body, err := cmd.Body()
	require.NoError(t, err)
	assert.Equal(t, text, string(body))
	assert.Equal(t, models.TopicRaw, cmd.Topic)
	assert.Equal(t, "text/plain", cmd.ContentType())
}

func TestDefaultRawMessageIsJSON(t *testing.T) {
	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(builder.DefaultRawMessage()), &payload))
	assert.Equal(t, "SIMPLE_STOP_ORDER", payload["action"])
	assert.Equal(t, "SBER", payload["scode"])
}

func TestSendAppendsOutboundEntry(t *testing.T) {
	pub := &fakePublisher{}
	events := eventlog.New(0)
	p := NewPublisher(pub, events, 100, 1)

	cmd, err := builder.Build("buy", "", "", "1", "100")
	require.NoError(t, err)
	entry, err := p.Send(context.Background(), cmd)
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	assert.Equal(t, cmd.ID, pub.sent[0].ID)
	assert.Equal(t, "application/json", pub.sent[0].ContentType)
	assert.Equal(t, models.TopicBuySell, pub.topics[0])

	all := events.All()
	require.Len(t, all, 1)
	assert.Equal(t, entry, all[0])
	assert.Equal(t, models.Outbound, entry.Direction)
	assert.Equal(t, string(pub.sent[0].Body), entry.Body)
}

func TestSendTransportFailure(t *testing.T) {
	pub := &fakePublisher{err: &transport.ConnectivityError{Op: "publish", Err: transport.ErrNotConnected}}
	events := eventlog.New(0)
	p := NewPublisher(pub, events, 100, 1)

	_, err := p.Send(context.Background(), builder.BuildRaw("x"))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
	assert.Zero(t, events.Len())
}

func TestSendHonoursContext(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPublisher(pub, eventlog.New(0), 0.001, 1)

	require.NoError(t, func() error {
		_, err := p.Send(context.Background(), builder.BuildRaw("first"))
		return err
	}())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Send(ctx, builder.BuildRaw("second"))
	assert.Error(t, err)
	assert.Len(t, pub.sent, 1)
}
