package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSpeechKitRecognizerTranscribe(t *testing.T) {
	var gotLang, gotFolder, gotAuth string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		gotFolder = r.URL.Query().Get("folderId")
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result": "  hola profesor  "}`))
	}))
	defer srv.Close()

	rec := NewSpeechKitRecognizer(SpeechKitRecognizerConfig{
		URL:      srv.URL,
		APIKey:   "key-1",
		FolderID: "folder-1",
		Language: "es-ES",
	})

	text, err := rec.Transcribe(context.Background(), []byte("oggbytes"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "hola profesor" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	if gotLang != "es-ES" || gotFolder != "folder-1" {
		t.Errorf("query params lang=%q folderId=%q", gotLang, gotFolder)
	}
	if gotAuth != "Api-Key key-1" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if string(gotBody) != "oggbytes" {
		t.Errorf("body = %q, want raw audio", gotBody)
	}
}

func TestSpeechKitRecognizerEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"result": ""}`))
	}))
	defer srv.Close()

	rec := NewSpeechKitRecognizer(SpeechKitRecognizerConfig{URL: srv.URL})
	text, err := rec.Transcribe(context.Background(), []byte("x"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v, want nil for empty transcript", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty", text)
	}
}

func TestSpeechKitRecognizerFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"vendor error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "bad audio", http.StatusBadRequest)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`not json`))
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			rec := NewSpeechKitRecognizer(SpeechKitRecognizerConfig{URL: srv.URL})
			_, err := rec.Transcribe(context.Background(), []byte("x"))
			if !errors.Is(err, ErrUnavailable) {
				t.Fatalf("Transcribe() error = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestSpeechKitRecognizerTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	rec := NewSpeechKitRecognizer(SpeechKitRecognizerConfig{URL: srv.URL})
	_, err := rec.Transcribe(context.Background(), []byte("x"))
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Transcribe() error = %v, want ErrUnavailable", err)
	}
}
