package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteParsesTextAndImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer")
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "chat-model" || req.Stream {
			t.Errorf("req = %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"done","images":[{"image_url":{"url":"data:image/png;base64,AAA"}}]}}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/v1/", APIKey: "key", ChatModel: "chat-model"})
	got, err := c.Complete(context.Background(), ChatRequest{
		Messages: []Message{{Role: "user", Content: []ContentPart{TextPart("hi"), ImagePart("https://x/y.png")}}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got.Text != "done" || len(got.Images) != 1 || got.Images[0] != "data:image/png;base64,AAA" {
		t.Fatalf("got = %+v", got)
	}
}

func TestStreamReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Errorf("expected stream=true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	body, err := New(Config{BaseURL: srv.URL}).Stream(context.Background(), ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "data: [DONE]\n" {
		t.Fatalf("body = %q", data)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusTooManyRequests, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{http.StatusPaymentRequired, func(err error) bool { return errors.Is(err, ErrPaymentRequired) }},
		{http.StatusBadGateway, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.StatusCode() == http.StatusBadGateway && se.Body == "upstream detail"
		}},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte("upstream detail"))
		}))
		_, err := New(Config{BaseURL: srv.URL}).Stream(context.Background(), ChatRequest{})
		srv.Close()
		if !tc.check(err) {
			t.Errorf("status %d: unexpected error %v", tc.status, err)
		}
	}
}
