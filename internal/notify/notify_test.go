package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/asycuda-export/internal/config"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestNew_NoBrokersIsNop(t *testing.T) {
	n := New(config.NotifyConfig{Topic: "t"})
	assert.IsType(t, Nop{}, n)
	assert.NoError(t, n.Publish(context.Background(), DeclarationExported{}))
	assert.NoError(t, n.Close())
}

func TestKafka_Publish(t *testing.T) {
	w := new(mockWriter)
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()
	w.On("Close").Return(nil).Once()

	k := NewKafka(w)
	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	err := k.Publish(context.Background(), DeclarationExported{
		RunID:        "run-1",
		Registration: "LC20261017000042",
		Items:        2,
		TotalValue:   decimal.RequireFromString("90.00"),
		Currency:     "XCD",
		Artifacts:    []string{"LC20261017000042.xml"},
		Valid:        true,
		ExportedAt:   at,
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "LC20261017000042", string(sent[0].Key))
	assert.Equal(t, at, sent[0].Time)

	var body map[string]any
	require.NoError(t, json.Unmarshal(sent[0].Value, &body))
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "90", body["total_value"])

	require.NoError(t, k.Close())
	w.AssertExpectations(t)
}

func TestKafka_PublishError(t *testing.T) {
	w := new(mockWriter)
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	err := NewKafka(w).Publish(context.Background(), DeclarationExported{Registration: "LC1"})
	assert.ErrorContains(t, err, "failed to publish LC1")
	assert.ErrorContains(t, err, "broker down")
}
