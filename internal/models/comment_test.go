package models

import "testing"

const testTemplate = "{body}\n\n_(added by {user.full_name} [{user.username}] via G-Cloud Portal)_"

func TestPrepareMessage(t *testing.T) {
	user := &User{Username: "alice", FullName: "Alice Lebowski"}
	got := PrepareMessage(testTemplate, user, "hello")
	want := "hello\n\n_(added by Alice Lebowski [alice] via G-Cloud Portal)_"
	if got != want {
		t.Errorf("PrepareMessage() = %q, want %q", got, want)
	}
}

func TestPrepareMessageNilUser(t *testing.T) {
	if got := PrepareMessage(testTemplate, nil, "hello"); got != "hello" {
		t.Errorf("PrepareMessage() = %q, want %q", got, "hello")
	}
}

func TestCleanMessageRoundTrip(t *testing.T) {
	user := &User{Username: "alice", FullName: "Alice Lebowski"}
	prepared := PrepareMessage(testTemplate, user, "hello")

	body, username := CleanMessage(testTemplate, prepared)
	if body != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
	if username != "alice" {
		t.Errorf("username = %q, want %q", username, "alice")
	}
}

func TestCleanMessageNoSuffix(t *testing.T) {
	body, username := CleanMessage(testTemplate, "a plain remote comment")
	if body != "a plain remote comment" {
		t.Errorf("body = %q, want the message unchanged", body)
	}
	if username != "" {
		t.Errorf("username = %q, want empty", username)
	}
}

func TestCleanMessageMultilineBody(t *testing.T) {
	user := &User{Username: "bob.smith", FullName: "Bob Smith"}
	prepared := PrepareMessage(testTemplate, user, "line one\nline two")

	body, username := CleanMessage(testTemplate, prepared)
	if body != "line one\nline two" {
		t.Errorf("body = %q", body)
	}
	if username != "bob.smith" {
		t.Errorf("username = %q, want %q", username, "bob.smith")
	}
}
