package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Delamole/botesp/internal/config"
	"github.com/Delamole/botesp/internal/events"
	"github.com/Delamole/botesp/internal/telegram"
	"github.com/Delamole/botesp/internal/tutor"
)

type fakePipeline struct {
	turns       []tutor.Input
	responds    []string
	transcripts int
}

func (p *fakePipeline) HandleTurn(_ context.Context, _, _ int64, in tutor.Input) tutor.Result {
	p.turns = append(p.turns, in)
	return tutor.Result{Text: "ok", Outcome: tutor.OutcomeOK}
}

func (p *fakePipeline) Respond(_ context.Context, _, _ int64, _, text string) {
	p.responds = append(p.responds, text)
}

func (p *fakePipeline) Greeting() string { return "¡Hola!" }

func (p *fakePipeline) Transcript(int64) string {
	p.transcripts++
	return "la última respuesta"
}

func (p *fakePipeline) VoiceError() string { return "Hubo un error al procesar tu voz." }

type fakeFiles struct {
	data []byte
	err  error
}

func (f *fakeFiles) GetFile(_ context.Context, fileID string) (telegram.File, error) {
	if f.err != nil {
		return telegram.File{}, f.err
	}
	return telegram.File{FileID: fileID, FilePath: "voice/clip.oga"}, nil
}

func (f *fakeFiles) Download(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func newTestServer(t *testing.T, pipeline *fakePipeline, files *fakeFiles) *httptest.Server {
	t.Helper()
	if files == nil {
		files = &fakeFiles{}
	}
	hub := events.NewHub()
	srv := New(config.Config{}, pipeline, files, hub, nil, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postUpdate(t *testing.T, ts *httptest.Server, update telegram.Update) *http.Response {
	t.Helper()
	body, _ := json.Marshal(update)
	res, err := http.Post(ts.URL+"/webhook", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	res.Body.Close()
	return res
}

func TestWebhookTextTurn(t *testing.T) {
	pipeline := &fakePipeline{}
	ts := newTestServer(t, pipeline, nil)

	res := postUpdate(t, ts, telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: 42},
			Chat:      telegram.Chat{ID: 42},
			Text:      "Hola",
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if len(pipeline.turns) != 1 || pipeline.turns[0].Text != "Hola" {
		t.Fatalf("turns = %+v, want one text turn", pipeline.turns)
	}
}

func TestWebhookVoiceTurnDownloadsClip(t *testing.T) {
	pipeline := &fakePipeline{}
	files := &fakeFiles{data: []byte("oggbytes")}
	ts := newTestServer(t, pipeline, files)

	postUpdate(t, ts, telegram.Update{
		Message: &telegram.Message{
			From:  &telegram.User{ID: 42},
			Chat:  telegram.Chat{ID: 42},
			Voice: &telegram.Voice{FileID: "f1"},
		},
	})

	if len(pipeline.turns) != 1 || string(pipeline.turns[0].Audio) != "oggbytes" {
		t.Fatalf("turns = %+v, want one audio turn", pipeline.turns)
	}
}

func TestWebhookVoiceDownloadFailureStillAnswers(t *testing.T) {
	pipeline := &fakePipeline{}
	files := &fakeFiles{err: errors.New("file expired")}
	ts := newTestServer(t, pipeline, files)

	res := postUpdate(t, ts, telegram.Update{
		Message: &telegram.Message{
			From:  &telegram.User{ID: 42},
			Chat:  telegram.Chat{ID: 42},
			Voice: &telegram.Voice{FileID: "f1"},
		},
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	// No turn runs; the user gets the voice-error reply instead of silence.
	if len(pipeline.turns) != 0 {
		t.Fatalf("turns = %+v, want none", pipeline.turns)
	}
	if len(pipeline.responds) != 1 || pipeline.responds[0] != "Hubo un error al procesar tu voz." {
		t.Fatalf("responds = %q, want the voice-error reply", pipeline.responds)
	}
}

func TestWebhookCommands(t *testing.T) {
	pipeline := &fakePipeline{}
	ts := newTestServer(t, pipeline, nil)

	postUpdate(t, ts, telegram.Update{
		Message: &telegram.Message{
			From: &telegram.User{ID: 42},
			Chat: telegram.Chat{ID: 42},
			Text: "/start",
		},
	})
	postUpdate(t, ts, telegram.Update{
		Message: &telegram.Message{
			From: &telegram.User{ID: 42},
			Chat: telegram.Chat{ID: 42},
			Text: "/texto",
		},
	})

	if len(pipeline.turns) != 0 {
		t.Fatalf("commands must not reach the turn pipeline: %+v", pipeline.turns)
	}
	if len(pipeline.responds) != 2 {
		t.Fatalf("responds = %v, want greeting and transcript", pipeline.responds)
	}
	if pipeline.responds[0] != "¡Hola!" {
		t.Errorf("greeting = %q", pipeline.responds[0])
	}
	if pipeline.transcripts != 1 || pipeline.responds[1] != "la última respuesta" {
		t.Errorf("transcript delivery = %q (calls %d)", pipeline.responds[1], pipeline.transcripts)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	pipeline := &fakePipeline{}
	ts := newTestServer(t, pipeline, nil)

	res, err := http.Post(ts.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST /webhook error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	if len(pipeline.turns) != 0 {
		t.Fatalf("malformed update reached the pipeline")
	}
}

func TestWebhookIgnoresNonMessageUpdates(t *testing.T) {
	pipeline := &fakePipeline{}
	ts := newTestServer(t, pipeline, nil)

	res := postUpdate(t, ts, telegram.Update{UpdateID: 99})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if len(pipeline.turns) != 0 || len(pipeline.responds) != 0 {
		t.Fatalf("empty update triggered work")
	}
}

func TestStatusEndpoints(t *testing.T) {
	ts := newTestServer(t, &fakePipeline{}, nil)

	for _, path := range []string{"/", "/healthz", "/readyz"} {
		res, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s error = %v", path, err)
		}
		var payload map[string]string
		if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK || payload["status"] != "ok" {
			t.Fatalf("GET %s = %d %v", path, res.StatusCode, payload)
		}
	}
}

func TestEventsWSStreamsTurnEvents(t *testing.T) {
	pipeline := &fakePipeline{}
	files := &fakeFiles{}
	hub := events.NewHub()
	srv := New(config.Config{}, pipeline, files, hub, nil, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	// The subscription happens on the handler goroutine after the upgrade;
	// wait for it before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("ws handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(events.TurnEvent{Type: events.TypeReply, UserID: 42, TurnID: "t1", Text: "hola"})

	var ev events.TurnEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read ws event: %v", err)
	}
	if ev.Type != events.TypeReply || ev.UserID != 42 || ev.Text != "hola" {
		t.Fatalf("event = %+v", ev)
	}
}
