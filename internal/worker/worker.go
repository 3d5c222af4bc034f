// Package worker provides a NATS worker that serves clip generation requests.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/voice-studio/internal/core"
	"github.com/book-expert/voice-studio/internal/library"
	"github.com/book-expert/voice-studio/internal/studio"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const handleMessageTimeout = 90 * time.Second

var (
	// ErrUserIDEmpty indicates that a request carries no owner scope.
	ErrUserIDEmpty = errors.New("header user id cannot be empty")
	// ErrSubjectEmpty indicates that the worker was built without a subject.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
)

// GenerateRequestEvent asks for one clip. Header.UserID is the owner scope.
type GenerateRequestEvent struct {
	Header           events.EventHeader `json:"header"`
	Text             string             `json:"text"`
	Voice            string             `json:"voice,omitempty"`
	ReferenceVoiceID string             `json:"referenceVoiceId,omitempty"`
}

// ClipCreatedEvent answers a GenerateRequestEvent. Error is set when no clip was created.
type ClipCreatedEvent struct {
	Header    events.EventHeader `json:"header"`
	ClipID    string             `json:"clipId,omitempty"`
	AudioKey  string             `json:"audioKey,omitempty"`
	VoiceName string             `json:"voiceName,omitempty"`
	Text      string             `json:"text,omitempty"`
	SizeBytes int                `json:"sizeBytes,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Generator produces clips for an owner scope.
type Generator interface {
	Generate(ctx context.Context, scope string, req studio.GenerateRequest) (library.Entry[core.GeneratedClip], error)
}

// NatsWorker listens for generation requests on a NATS subject and replies with the result.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	queueGroup     string
	generator      Generator
	log            *logger.Logger

	mu           sync.Mutex
	subscription *nats.Subscription
}

// NewNatsWorker creates a new instance of a NATS worker. An empty queueGroup subscribes
// without load balancing.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	queueGroup string,
	generator Generator,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		queueGroup:     queueGroup,
		generator:      generator,
		log:            log,
	}, nil
}

// Start subscribes to the subject. Requests are served once Start returns.
func (w *NatsWorker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.subscription != nil {
		return nil
	}

	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.queueGroup, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	flushErr := w.natsConnection.Flush()
	if flushErr != nil {
		_ = sub.Unsubscribe()

		return fmt.Errorf("failed to flush subscription to subject %s: %w", w.subject, flushErr)
	}

	w.subscription = sub
	w.log.Info("Listening for generation requests on subject: %s", w.subject)

	return nil
}

// Run starts the worker if needed and serves requests until ctx is done.
func (w *NatsWorker) Run(ctx context.Context) error {
	err := w.Start()
	if err != nil {
		return err
	}

	<-ctx.Done()

	w.mu.Lock()
	sub := w.subscription
	w.subscription = nil
	w.mu.Unlock()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		header := events.EventHeader{}
		if event != nil {
			header = event.Header
		}

		w.reply(msg, &ClipCreatedEvent{Header: replyHeader(header), Error: err.Error()})

		return
	}

	entry, err := w.generator.Generate(ctx, event.Header.UserID, studio.GenerateRequest{
		Text:             event.Text,
		Voice:            event.Voice,
		ReferenceVoiceID: event.ReferenceVoiceID,
	})
	if err != nil {
		w.log.Error("Failed to generate clip for workflow %s: %v", event.Header.WorkflowID, err)
		w.reply(msg, &ClipCreatedEvent{Header: replyHeader(event.Header), Error: studio.Notification(err)})

		return
	}

	w.reply(msg, &ClipCreatedEvent{
		Header:    replyHeader(event.Header),
		ClipID:    entry.Record.ID,
		AudioKey:  core.BlobKey(entry.Record.OwnerScope, entry.Record.ID),
		VoiceName: entry.Record.VoiceName,
		Text:      entry.Record.Text,
		SizeBytes: entry.Handle.Size(),
	})
}

func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *ClipCreatedEvent) {
	err := w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", replyEvent.Header.WorkflowID, err)
	}
}

// publishReplyEvent marshals and responds with the ClipCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *ClipCreatedEvent) error {
	if msg.Reply == "" {
		return nil
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*GenerateRequestEvent, error) {
	var event GenerateRequestEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.Header.UserID == "" {
		return &event, ErrUserIDEmpty
	}

	err = core.ValidateScope(event.Header.UserID)
	if err != nil {
		return &event, fmt.Errorf("failed to accept user id: %w", err)
	}

	return &event, nil
}

// replyHeader keeps the workflow and identity of a request under a new event id.
func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}
