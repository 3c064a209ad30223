package sink_test

import (
	"context"
	"testing"

	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/mocks"
	"campus-chat/sink"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSearchSink_Consume(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	index := mocks.NewMockISearchIndex(ctrl)
	s := sink.NewSearchSink(index, logs.GetLoggerFromString("DEBUG"))
	msg := chat.Message{ID: "m1", RoomID: "algorithms", SearchContent: "graphs"}

	gomock.InOrder(
		index.EXPECT().Index(msg).Return(nil),
		index.EXPECT().Index(msg).Return(nil),
		index.EXPECT().Remove("m1").Return(nil),
	)

	req.NoError(s.Consume(context.Background(), event.ChatEvent{Name: event.MessageNew, Data: msg}))
	req.NoError(s.Consume(context.Background(), event.ChatEvent{Name: event.MessageEdit, Data: msg}))
	req.NoError(s.Consume(context.Background(), event.ChatEvent{Name: event.MessageDelete, Data: event.MessageDeleted{MessageID: "m1"}}))
	req.NoError(s.Consume(context.Background(), event.ChatEvent{Name: event.TypingStart}))
	req.Error(s.Consume(context.Background(), event.ChatEvent{Name: event.MessageNew, Data: "not a message"}))
}
