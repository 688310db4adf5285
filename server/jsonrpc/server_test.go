// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/go-a2a/a2a-runtime"
	"github.com/go-a2a/a2a-runtime/internal/echo"
	"github.com/go-a2a/a2a-runtime/server/handler"
	"github.com/go-a2a/a2a-runtime/server/task"
)

func newTestServer(t *testing.T, opts ...handler.Option) *httptest.Server {
	t.Helper()
	h, err := handler.NewDefaultRequestHandler(echo.New(), task.NewInMemoryTaskStore(), opts...)
	if err != nil {
		t.Fatalf("NewDefaultRequestHandler() error = %v", err)
	}
	srv, err := NewServer(h)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Shutdown(ctx); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return ts
}

func post(t *testing.T, url string, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func encodeRequest(t *testing.T, method string, params any) []byte {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("json.Marshal(params) error = %v", err)
	}
	body, err := json.Marshal(&Request{JSONRPC: Version, ID: jsontext.Value(`7`), Method: method, Params: raw})
	if err != nil {
		t.Fatalf("json.Marshal(request) error = %v", err)
	}
	return body
}

func call(t *testing.T, ts *httptest.Server, method string, params any) *Response {
	t.Helper()
	resp := post(t, ts.URL, encodeRequest(t, method, params))
	var out Response
	if err := json.UnmarshalRead(resp.Body, &out); err != nil {
		t.Fatalf("decode response error = %v", err)
	}
	return &out
}

func decodeResult(t *testing.T, resp *Response) map[string]any {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("response error = %+v", resp.Error)
	}
	var m map[string]any
	if err := json.Unmarshal(resp.Result, &m); err != nil {
		t.Fatalf("decode result error = %v", err)
	}
	return m
}

func state(m map[string]any) string {
	status, _ := m["status"].(map[string]any)
	s, _ := status["state"].(string)
	return s
}

func textMessage(text string) *a2a.Message {
	return a2a.NewTextMessage(a2a.RoleUser, text)
}

func TestServerMessageSend(t *testing.T) {
	ts := newTestServer(t)
	resp := call(t, ts, MethodMessageSend, &a2a.MessageSendParams{Message: textMessage("hello world")})

	if string(resp.ID) != "7" {
		t.Errorf("response id = %s, want 7", resp.ID)
	}
	got := decodeResult(t, resp)
	if got["kind"] != "task" {
		t.Errorf("kind = %v, want task", got["kind"])
	}
	if state(got) != string(a2a.TaskStateCompleted) {
		t.Errorf("state = %s, want completed", state(got))
	}

	taskID, _ := got["id"].(string)
	fetched := decodeResult(t, call(t, ts, MethodTasksGet, &a2a.TaskQueryParams{ID: taskID}))
	if fetched["id"] != taskID || state(fetched) != string(a2a.TaskStateCompleted) {
		t.Errorf("tasks/get = %v", fetched)
	}

	list := decodeResult(t, call(t, ts, MethodTasksList, &a2a.ListTasksParams{}))
	if tasks, _ := list["tasks"].([]any); len(tasks) != 1 {
		t.Errorf("tasks/list returned %d tasks, want 1", len(tasks))
	}

	del := call(t, ts, MethodTasksDelete, &a2a.TaskIDParams{ID: taskID})
	if del.Error != nil || string(del.Result) != "null" {
		t.Errorf("tasks/delete = %s, %+v", del.Result, del.Error)
	}
}

func TestServerErrors(t *testing.T) {
	ts := newTestServer(t)
	done := decodeResult(t, call(t, ts, MethodMessageSend, &a2a.MessageSendParams{Message: textMessage("hi")}))
	doneID, _ := done["id"].(string)

	tests := []struct {
		name string
		body []byte
		want int64
	}{
		{name: "parse error", body: []byte(`{"jsonrpc":`), want: CodeParseError},
		{name: "wrong version", body: []byte(`{"jsonrpc":"1.0","id":1,"method":"tasks/get"}`), want: CodeInvalidRequest},
		{name: "unknown method", body: encodeRequest(t, "tasks/explode", nil), want: CodeMethodNotFound},
		{name: "malformed params", body: []byte(`{"jsonrpc":"2.0","id":1,"method":"tasks/get","params":{"id":5}}`), want: CodeInvalidParams},
		{name: "missing message", body: encodeRequest(t, MethodMessageSend, &a2a.MessageSendParams{}), want: CodeInvalidParams},
		{name: "unknown task", body: encodeRequest(t, MethodTasksGet, &a2a.TaskQueryParams{ID: "missing"}), want: CodeTaskNotFound},
		{name: "cancel finished task", body: encodeRequest(t, MethodTasksCancel, &a2a.TaskIDParams{ID: doneID}), want: CodeTaskNotCancelable},
		{name: "push disabled", body: encodeRequest(t, MethodPushNotificationConfigList, &a2a.TaskIDParams{ID: doneID}), want: CodeUnsupportedOperation},
		{name: "bad page token", body: encodeRequest(t, MethodTasksList, &a2a.ListTasksParams{PageToken: "garbage"}), want: CodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, ts.URL, tt.body)
			var out Response
			if err := json.UnmarshalRead(resp.Body, &out); err != nil {
				t.Fatalf("decode response error = %v", err)
			}
			if out.Error == nil {
				t.Fatalf("response has no error, result = %s", out.Result)
			}
			if out.Error.Code != tt.want {
				t.Errorf("error code = %d, want %d (%s)", out.Error.Code, tt.want, out.Error.Message)
			}
		})
	}
}

// readSSE returns the JSON-RPC responses of every data frame in the stream.
func readSSE(t *testing.T, resp *http.Response) []*Response {
	t.Helper()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	var out []*Response
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var r Response
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			t.Fatalf("decode frame %q error = %v", data, err)
		}
		out = append(out, &r)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("read stream error = %v", err)
	}
	return out
}

func kinds(t *testing.T, frames []*Response) []string {
	t.Helper()
	var out []string
	for _, f := range frames {
		out = append(out, decodeResult(t, f)["kind"].(string))
	}
	return out
}

func TestServerMessageStream(t *testing.T) {
	ts := newTestServer(t)
	resp := post(t, ts.URL, encodeRequest(t, MethodMessageStream, &a2a.MessageSendParams{Message: textMessage("hello world")}))
	frames := readSSE(t, resp)

	want := []string{"status-update", "status-update", "artifact-update", "artifact-update", "status-update"}
	if diff := cmp.Diff(want, kinds(t, frames)); diff != "" {
		t.Fatalf("stream kinds mismatch (-want +got):\n%s", diff)
	}
	last := decodeResult(t, frames[len(frames)-1])
	if last["final"] != true || state(last) != string(a2a.TaskStateCompleted) {
		t.Errorf("last frame = %v, want final completed status", last)
	}
	for _, f := range frames {
		if string(f.ID) != "7" {
			t.Errorf("frame id = %s, want 7", f.ID)
		}
	}

	taskID, _ := last["taskId"].(string)
	resub := readSSE(t, post(t, ts.URL, encodeRequest(t, MethodTasksResubscribe, &a2a.TaskIDParams{ID: taskID})))
	if diff := cmp.Diff([]string{"task"}, kinds(t, resub)); diff != "" {
		t.Errorf("resubscribe kinds mismatch (-want +got):\n%s", diff)
	}
}

func TestServerStreamError(t *testing.T) {
	ts := newTestServer(t)
	frames := readSSE(t, post(t, ts.URL, encodeRequest(t, MethodTasksResubscribe, &a2a.TaskIDParams{ID: "missing"})))
	if len(frames) != 1 || frames[0].Error == nil || frames[0].Error.Code != CodeTaskNotFound {
		t.Fatalf("frames = %+v, want one task-not-found error", frames)
	}
}

func TestServerWebsocketSubscribe(t *testing.T) {
	ts := newTestServer(t)
	blocking := false
	running := decodeResult(t, call(t, ts, MethodMessageSend, &a2a.MessageSendParams{
		Message:       textMessage("/wait"),
		Configuration: &a2a.MessageSendConfiguration{Blocking: &blocking},
	}))
	taskID, _ := running["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/tasks/" + taskID + "/subscribe"
	conn, _, err := websocket.DefaultDialer.DialContext(t.Context(), wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	readFrame := func() map[string]any {
		t.Helper()
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var r Response
		if err := json.Unmarshal(data, &r); err != nil {
			t.Fatalf("decode frame error = %v", err)
		}
		return decodeResult(t, &r)
	}

	if snap := readFrame(); snap["kind"] != "task" {
		t.Fatalf("first frame kind = %v, want task", snap["kind"])
	}

	canceled := decodeResult(t, call(t, ts, MethodTasksCancel, &a2a.TaskIDParams{ID: taskID}))
	if state(canceled) != string(a2a.TaskStateCanceled) {
		t.Fatalf("tasks/cancel state = %s, want canceled", state(canceled))
	}

	var last map[string]any
	for {
		last = readFrame()
		if last["final"] == true {
			break
		}
	}
	if state(last) != string(a2a.TaskStateCanceled) {
		t.Errorf("final frame state = %s, want canceled", state(last))
	}

	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() after final event error = %v, want normal closure", err)
	}
}

func TestWithKind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: `{"id":"t1"}`, want: `{"kind":"task","id":"t1"}`},
		{in: `{}`, want: `{"kind":"task"}`},
		{in: `null`, want: `null`},
	}
	for _, tt := range tests {
		if got := string(withKind([]byte(tt.in), a2a.EventKindTask)); got != tt.want {
			t.Errorf("withKind(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
