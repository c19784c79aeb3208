package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/llteacher/llteacher-api/internal/dto"
	"github.com/llteacher/llteacher-api/internal/models"
)

type eventRecorder struct {
	events []StreamEvent
}

func (r *eventRecorder) emit(event StreamEvent) error {
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) byType(eventType string) []StreamEvent {
	var matched []StreamEvent
	for _, event := range r.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newStreamFixture(t *testing.T, tokens []string) (*conversationFixture, StreamService) {
	t.Helper()
	f := newConversationFixture(t)
	f.client.tokens = tokens

	tutorConfigs := NewTutorConfigService(f.configs, f.client, nil, time.Minute, testValidator(), testLogger())
	svc := NewStreamService(f.conversations, f.homeworks, tutorConfigs, f.client, testValidator(), testLogger())
	return f, svc
}

func TestRelayStreamsAndPersistsTokens(t *testing.T) {
	f, svc := newStreamFixture(t, []string{"Hello", " there", "! How", " can I", " help?"})

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{
		Content: "Hello, I need help with this section",
	}, recorder.emit)
	require.NoError(t, err)

	userEvents := recorder.byType(EventUserMessage)
	require.Len(t, userEvents, 1)
	require.Equal(t, "Hello, I need help with this section", userEvents[0].Content)

	startEvents := recorder.byType(EventAIMessageStart)
	require.Len(t, startEvents, 1)
	require.NotNil(t, startEvents[0].MessageID)

	tokenEvents := recorder.byType(EventAIToken)
	require.Len(t, tokenEvents, 5)
	require.Equal(t, "Hello", tokenEvents[0].Token)
	require.Equal(t, "Hello", tokenEvents[0].Content)
	require.Equal(t, " help?", tokenEvents[4].Token)
	require.Equal(t, "Hello there! How can I help?", tokenEvents[4].Content)

	completeEvents := recorder.byType(EventAIMessageComplete)
	require.Len(t, completeEvents, 1)
	require.Equal(t, "Hello there! How can I help?", completeEvents[0].Content)
	require.Empty(t, recorder.byType(EventError))

	// Exactly one student and one tutor message were written, the latter with
	// the fully accumulated content.
	messages, err := f.conversations.ListMessages(context.Background(), started.ConversationID)
	require.NoError(t, err)
	var student, tutor []models.Message
	for _, message := range messages {
		switch message.MessageType {
		case models.MessageTypeStudent:
			student = append(student, message)
		case models.MessageTypeAI:
			tutor = append(tutor, message)
		}
	}
	require.Len(t, student, 1)
	require.Equal(t, "Hello, I need help with this section", student[0].Content)
	require.Len(t, tutor, 2) // greeting plus the streamed reply
	require.Equal(t, "Hello there! How can I help?", tutor[1].Content)
}

func TestRelayRejectsEmptyContent(t *testing.T) {
	f, svc := newStreamFixture(t, nil)

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{Content: "   "}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	require.Equal(t, EventError, recorder.events[0].Type)

	messages, err := f.conversations.ListMessages(context.Background(), started.ConversationID)
	require.NoError(t, err)
	require.Len(t, messages, 1) // only the greeting
}

func TestRelayRejectsNonOwner(t *testing.T) {
	f, svc := newStreamFixture(t, []string{"nope"})

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.teacherID, started.ConversationID, dto.MessageSendRequest{Content: "hi"}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	require.Equal(t, EventError, recorder.events[0].Type)
}

func TestRelayRejectsDeletedConversation(t *testing.T) {
	f, svc := newStreamFixture(t, []string{"nope"})

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)
	require.NoError(t, f.conversations.SoftDelete(context.Background(), started.ConversationID, time.Now()))

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{Content: "hi"}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	require.Equal(t, EventError, recorder.events[0].Type)
}

func TestRelayUnknownConversation(t *testing.T) {
	_, svc := newStreamFixture(t, nil)

	recorder := &eventRecorder{}
	err := svc.Relay(context.Background(), uuid.New(), uuid.New(), dto.MessageSendRequest{Content: "hi"}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.events, 1)
	require.Equal(t, EventError, recorder.events[0].Type)
	require.Equal(t, "conversation not found", recorder.events[0].Error)
}

func TestRelayProviderFailureMidStreamKeepsPartial(t *testing.T) {
	f, svc := newStreamFixture(t, []string{"Hello", " there", " ignored"})
	f.client.failAfter = 2

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{Content: "hi"}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.byType(EventAIToken), 2)
	require.Len(t, recorder.byType(EventError), 1)
	require.Empty(t, recorder.byType(EventAIMessageComplete))

	// The tokens seen before the failure stay persisted.
	messages, err := f.conversations.ListMessages(context.Background(), started.ConversationID)
	require.NoError(t, err)
	last := messages[len(messages)-1]
	require.Equal(t, models.MessageTypeAI, last.MessageType)
	require.Equal(t, "Hello there", last.Content)
}

func TestRelayAbandonedMidStreamReleasesProvider(t *testing.T) {
	f, svc := newStreamFixture(t, []string{"one", "two", "three", "four"})
	f.client.streamDone = make(chan struct{})

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	// The client connection drops after the first token.
	gone := errors.New("connection reset")
	emit := func(event StreamEvent) error {
		if event.Type == EventAIToken {
			return gone
		}
		return nil
	}

	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{Content: "hi"}, emit)
	require.ErrorIs(t, err, gone)

	// The producer goroutine must still run to completion rather than sit
	// blocked on a channel nobody reads.
	require.Eventually(t, func() bool {
		select {
		case <-f.client.streamDone:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestRelayWithoutConfigFinishesCleanly(t *testing.T) {
	f, svc := newStreamFixture(t, nil)
	for id := range f.configs.configs {
		require.NoError(t, f.configs.Delete(context.Background(), id))
	}

	started, err := f.svc.Start(context.Background(), f.studentID, f.section.ID)
	require.NoError(t, err)

	recorder := &eventRecorder{}
	err = svc.Relay(context.Background(), f.studentID, started.ConversationID, dto.MessageSendRequest{Content: "hello?"}, recorder.emit)
	require.NoError(t, err)

	require.Len(t, recorder.byType(EventUserMessage), 1)
	require.Len(t, recorder.byType(EventAIMessageStart), 1)
	complete := recorder.byType(EventAIMessageComplete)
	require.Len(t, complete, 1)
	require.Equal(t, "I'm sorry, but there's no valid LLM configuration available right now.", complete[0].Content)
	require.Empty(t, recorder.byType(EventError))
}
