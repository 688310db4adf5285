// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func ptr[T any](v T) *T { return &v }

func TestTaskClone(t *testing.T) {
	orig := &Task{
		ID:        "t1",
		ContextID: "c1",
		Status: TaskStatus{
			State:   TaskStateWorking,
			Message: NewTextMessage(RoleAgent, "busy"),
		},
		Artifacts: []Artifact{{
			ArtifactID: "a1",
			Parts:      []Part{NewDataPart(map[string]any{"k": []any{"v"}})},
		}},
		History:  []Message{*NewTextMessage(RoleUser, "hi")},
		Metadata: map[string]any{"nested": map[string]any{"n": 1}},
	}
	orig.SetRevision(3)

	c := orig.Clone()
	if diff := cmp.Diff(orig, c, cmpopts.IgnoreUnexported(Task{})); diff != "" {
		t.Fatalf("Clone() mismatch (-want +got):\n%s", diff)
	}
	if c.Revision() != 3 {
		t.Errorf("Clone().Revision() = %d, want 3", c.Revision())
	}

	c.Status.Message.Parts[0].Text = "changed"
	c.Artifacts[0].Parts[0].Data["k"].([]any)[0] = "changed"
	c.History[0].Parts[0].Text = "changed"
	c.Metadata["nested"].(map[string]any)["n"] = 2

	if orig.Status.Message.Parts[0].Text != "busy" {
		t.Error("status message shared with clone")
	}
	if orig.Artifacts[0].Parts[0].Data["k"].([]any)[0] != "v" {
		t.Error("artifact data shared with clone")
	}
	if orig.History[0].Parts[0].Text != "hi" {
		t.Error("history shared with clone")
	}
	if orig.Metadata["nested"].(map[string]any)["n"] != 1 {
		t.Error("metadata shared with clone")
	}

	var nilTask *Task
	if nilTask.Clone() != nil {
		t.Error("nil Clone() != nil")
	}
}

func TestCloneEvent(t *testing.T) {
	ev := &TaskArtifactUpdateEvent{
		TaskID:   "t1",
		Artifact: Artifact{ArtifactID: "a1", Parts: []Part{NewTextPart("x")}},
	}
	c := CloneEvent(ev).(*TaskArtifactUpdateEvent)
	c.Artifact.Parts[0].Text = "y"
	if ev.Artifact.Parts[0].Text != "x" {
		t.Error("CloneEvent() shares artifact parts")
	}
}

func TestPushNotificationConfigClone(t *testing.T) {
	orig := &PushNotificationConfig{
		ID:             "p1",
		URL:            "https://hooks.example.com",
		Authentication: &PushNotificationAuthenticationInfo{Schemes: []string{"Bearer"}},
	}
	c := orig.Clone()
	c.Authentication.Schemes[0] = "Basic"
	if orig.Authentication.Schemes[0] != "Bearer" {
		t.Error("Clone() shares authentication schemes")
	}
}

func TestTrimHistory(t *testing.T) {
	history := func(ids ...string) []Message {
		var out []Message
		for _, id := range ids {
			out = append(out, Message{MessageID: id, Role: RoleUser})
		}
		return out
	}
	tests := []struct {
		n    int
		want []Message
	}{
		{n: -1, want: history("m1", "m2", "m3")},
		{n: 0, want: nil},
		{n: 2, want: history("m2", "m3")},
		{n: 3, want: history("m1", "m2", "m3")},
		{n: 10, want: history("m1", "m2", "m3")},
	}
	for _, tt := range tests {
		task := &Task{History: history("m1", "m2", "m3")}
		task.TrimHistory(tt.n)
		if diff := cmp.Diff(tt.want, task.History); diff != "" {
			t.Errorf("TrimHistory(%d) mismatch (-want +got):\n%s", tt.n, diff)
		}
	}
}

func TestTaskArtifact(t *testing.T) {
	task := &Task{Artifacts: []Artifact{{ArtifactID: "a"}, {ArtifactID: "b"}}}
	if got := task.Artifact("b"); got != 1 {
		t.Errorf("Artifact(b) = %d, want 1", got)
	}
	if got := task.Artifact("z"); got != -1 {
		t.Errorf("Artifact(z) = %d, want -1", got)
	}
}

func TestMessageValidate(t *testing.T) {
	valid := func() *Message { return &Message{MessageID: "m1", Role: RoleUser, Parts: []Part{NewTextPart("hi")}} }
	tests := []struct {
		name    string
		msg     func() *Message
		wantErr bool
	}{
		{name: "valid", msg: valid},
		{name: "nil", msg: func() *Message { return nil }, wantErr: true},
		{name: "no id", msg: func() *Message { m := valid(); m.MessageID = ""; return m }, wantErr: true},
		{name: "bad role", msg: func() *Message { m := valid(); m.Role = "system"; return m }, wantErr: true},
		{name: "no parts", msg: func() *Message { m := valid(); m.Parts = nil; return m }, wantErr: true},
		{name: "data without data", msg: func() *Message { m := valid(); m.Parts = []Part{{Kind: PartKindData}}; return m }, wantErr: true},
		{name: "file with both", msg: func() *Message {
			m := valid()
			m.Parts = []Part{NewFilePart(FileContent{Bytes: "aGk=", URI: "https://x"})}
			return m
		}, wantErr: true},
		{name: "file by uri", msg: func() *Message {
			m := valid()
			m.Parts = []Part{NewFilePart(FileContent{URI: "https://example.com/a.txt"})}
			return m
		}},
		{name: "unknown kind", msg: func() *Message { m := valid(); m.Parts = []Part{{Kind: "video"}}; return m }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg().Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Validate() error = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestMessageSendParams(t *testing.T) {
	p := &MessageSendParams{Message: NewTextMessage(RoleUser, "hi")}
	if !p.IsBlocking() || p.HistoryLength() != -1 {
		t.Errorf("defaults = blocking %v, history %d; want true, -1", p.IsBlocking(), p.HistoryLength())
	}

	p.Configuration = &MessageSendConfiguration{Blocking: ptr(false), HistoryLength: ptr(2)}
	if p.IsBlocking() || p.HistoryLength() != 2 {
		t.Errorf("configured = blocking %v, history %d; want false, 2", p.IsBlocking(), p.HistoryLength())
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	p.Configuration.HistoryLength = ptr(-1)
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Validate() with negative history error = %v, want ErrInvalidParams", err)
	}
	p.Configuration.HistoryLength = nil
	p.Configuration.PushNotificationConfig = &PushNotificationConfig{}
	if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Validate() with url-less push config error = %v, want ErrInvalidParams", err)
	}
}

func TestListTasksParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		params  ListTasksParams
		wantErr bool
	}{
		{name: "empty", params: ListTasksParams{}},
		{name: "status", params: ListTasksParams{Status: TaskStateWorking}},
		{name: "negative page size", params: ListTasksParams{PageSize: -1}, wantErr: true},
		{name: "unknown status", params: ListTasksParams{Status: "paused"}, wantErr: true},
		{name: "negative history", params: ListTasksParams{HistoryLength: ptr(-2)}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrTaskNotFound, true},
		{ErrPushNotificationConfigNotFound, true},
		{errors.Join(errors.New("get"), ErrTaskNotFound), true},
		{ErrTaskNotCancelable, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsNotFound(tt.err); got != tt.want {
			t.Errorf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestPushNotificationConfigName(t *testing.T) {
	if got, want := PushNotificationConfigName("t1", "p1"), "tasks/t1/pushNotificationConfigs/p1"; got != want {
		t.Errorf("PushNotificationConfigName() = %q, want %q", got, want)
	}
}
