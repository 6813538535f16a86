package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func countMedia(msgs []Message) int {
	n := 0
	for _, m := range msgs {
		if m.MessageType.IsMedia() {
			n++
		}
	}
	return n
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		file File
		kind MessageType
		err  error
	}{
		{"png", fileOf("a.png", "image/png", 1024), MessageImage, nil},
		{"params", fileOf("a.jpg", "image/jpeg; q=0.9", 1024), MessageImage, nil},
		{"image at limit", fileOf("a.png", "image/png", MaxImageBytes), MessageImage, nil},
		{"image over limit", fileOf("a.png", "image/png", MaxImageBytes+1), "", ErrPayloadTooLarge},
		{"video", fileOf("a.mp4", "video/mp4", 40*1024*1024), MessageVideo, nil},
		{"pdf", fileOf("a.pdf", "application/pdf", 10), "", ErrUnsupportedMedia},
		{"empty type", fileOf("a", "", 10), "", ErrUnsupportedMedia},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			kind, err := Classify(c.file)
			if c.err != nil {
				if !errors.Is(err, c.err) {
					t.Fatalf("expected %v, got %v", c.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != c.kind {
				t.Errorf("expected %s, got %s", c.kind, kind)
			}
		})
	}
}

func TestOversizedVideoNeverRequestsTarget(t *testing.T) {
	f, m := selectedMessenger(t)
	res := m.Attachments.Upload(context.Background(), "a", fileOf("clip.mp4", "video/mp4", 60*1024*1024))
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", res.Err)
	}
	var e *Error
	if !errors.As(res.Err, &e) || e.Limit != MaxVideoBytes {
		t.Fatalf("expected the 50 MB video limit, got %+v", e)
	}
	if !strings.Contains(Notice(res.Err), "50 MB") {
		t.Errorf("notice should name the limit: %q", Notice(res.Err))
	}
	if res.FailedPhase != PhaseValidating {
		t.Errorf("expected failure while validating, got %s", res.FailedPhase)
	}
	if f.count("RequestUpload") != 0 || f.count("PutObject") != 0 {
		t.Errorf("no network call expected")
	}
}

func TestUploadSuccessRegistersMessage(t *testing.T) {
	f, m := selectedMessenger(t)
	var phases []Phase
	defer m.Subscribe(func(ev Event) {
		if ev.Kind == EventUpload {
			phases = append(phases, ev.Phase)
		}
	})()

	res := m.Attachments.Upload(context.Background(), "a", fileOf("cat.png", "image/png", 2048))
	if !res.OK() {
		t.Fatalf("upload failed: %v", res.Err)
	}
	if res.Message.MessageType != MessageImage || res.Message.AttachmentRef != res.ObjectPath {
		t.Fatalf("unexpected message %+v", res.Message)
	}
	if res.Message.Content != DefaultContent(MessageImage) {
		t.Errorf("expected default content, got %q", res.Message.Content)
	}
	if f.count("PutObject") != 1 || f.count("PostMessage") != 1 {
		t.Errorf("expected one upload and one register call")
	}
	want := []Phase{PhaseValidating, PhaseRequesting, PhaseUploading, PhaseRegistering, PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
	th, _ := m.Threads.Get("a")
	if th.LastMessage == nil || th.LastMessage.Content == "" {
		t.Errorf("thread preview must not be blank")
	}
}

func TestFailedUploadProducesNoMessage(t *testing.T) {
	f, m := selectedMessenger(t)
	f.failPut = &Error{Kind: KindUpload, Op: "upload", Status: 403, Msg: "signature expired"}

	res := m.Attachments.Upload(context.Background(), "a", fileOf("cat.png", "image/png", 2048))
	if !errors.Is(res.Err, ErrUpload) {
		t.Fatalf("expected upload error, got %v", res.Err)
	}
	if res.FailedPhase != PhaseUploading {
		t.Errorf("expected failure while uploading, got %s", res.FailedPhase)
	}
	if f.count("PostMessage") != 0 {
		t.Errorf("nothing may be registered after a failed upload")
	}
	if n := countMedia(m.Messages.Messages()); n != 0 {
		t.Errorf("expected no media messages, got %d", n)
	}
	if n := len(m.Composer.Outbox()); n != 0 {
		t.Errorf("expected empty outbox, got %d", n)
	}
}

func TestRegisterFailureKeepsRetryableMessage(t *testing.T) {
	f, m := selectedMessenger(t)
	f.failPost = &Error{Kind: KindServer, Op: "POST /threads/a/messages", Status: 500}

	res := m.Attachments.Upload(context.Background(), "a", fileOf("cat.png", "image/png", 2048))
	if res.OK() {
		t.Fatal("expected failure")
	}
	if !errors.Is(res.Err, ErrServer) {
		t.Fatalf("expected server error, got %v", res.Err)
	}
	if res.FailedPhase != PhaseRegistering {
		t.Errorf("expected failure while registering, got %s", res.FailedPhase)
	}
	if res.ObjectPath == "" || res.Message.AttachmentRef != res.ObjectPath {
		t.Fatalf("failed message should reference the uploaded object, got %+v", res)
	}
	if f.count("PutObject") != 1 || f.count("PostMessage") != 1 {
		t.Errorf("expected one upload and one register attempt")
	}

	var failed *Message
	for _, msg := range m.Messages.Messages() {
		if msg.MessageType.IsMedia() {
			failed = &msg
		}
	}
	if failed == nil {
		t.Fatal("expected the media message to stay in the list")
	}
	if failed.State != StateFailed || failed.AttachmentRef != res.ObjectPath {
		t.Errorf("unexpected entry %+v", *failed)
	}
	if n := len(m.Composer.Outbox()); n != 1 {
		t.Fatalf("expected one retryable message, got %d", n)
	}

	// Retrying registers the same object without uploading again.
	f.mu.Lock()
	f.failPost = nil
	f.mu.Unlock()
	sent, err := m.Composer.Retry(context.Background(), failed.LocalID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if sent.AttachmentRef != res.ObjectPath || sent.MessageType != MessageImage {
		t.Errorf("unexpected retried message %+v", sent)
	}
	if f.count("PutObject") != 1 {
		t.Errorf("retry must not upload again")
	}
}

func TestUploadTargetFailureAborts(t *testing.T) {
	f, m := selectedMessenger(t)
	f.failRequest = &Error{Kind: KindAuthorization, Op: "request upload", Status: 401}

	res := m.Attachments.Upload(context.Background(), "a", fileOf("clip.mp4", "video/mp4", 1024))
	if !errors.Is(res.Err, ErrAuthorization) {
		t.Fatalf("expected authorization error, got %v", res.Err)
	}
	if res.FailedPhase != PhaseRequesting {
		t.Errorf("expected failure while requesting, got %s", res.FailedPhase)
	}
	if f.count("PutObject") != 0 || f.count("PostMessage") != 0 {
		t.Errorf("pipeline must stop after the target request fails")
	}
}

func TestUploadCompletesAfterNavigatingAway(t *testing.T) {
	f, m := selectedMessenger(t)
	m.Threads.ClearSelection()

	res := m.Attachments.Upload(context.Background(), "a", fileOf("clip.mp4", "video/mp4", 1024))
	if !res.OK() {
		t.Fatalf("upload failed: %v", res.Err)
	}
	if f.count("PostMessage") != 1 {
		t.Fatalf("expected the message to be registered")
	}
	if len(m.Messages.Messages()) != 0 {
		t.Errorf("deselected view should not change")
	}
	if _, err := m.Threads.Select(context.Background(), "a"); err != nil {
		t.Fatal(err)
	}
	if n := countMedia(m.Messages.Messages()); n != 1 {
		t.Errorf("expected the video after revisiting, got %d media messages", n)
	}
}

func TestServerMisclassificationAborts(t *testing.T) {
	f, m := selectedMessenger(t)
	f.uploadType = MessageText
	res := m.Attachments.Upload(context.Background(), "a", fileOf("cat.png", "image/png", 10))
	if !errors.Is(res.Err, ErrServer) {
		t.Fatalf("expected server error, got %v", res.Err)
	}
	if f.count("PutObject") != 0 {
		t.Errorf("expected no upload")
	}
}

func TestOpenFileSniffsContentType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("just text"), 0600); err != nil {
		t.Fatal(err)
	}
	file, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if file.Name != "note.txt" || file.Size != 9 {
		t.Errorf("unexpected file %+v", file)
	}
	if _, err := Classify(file); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("expected text file to be rejected, got %v", err)
	}
	if _, err := OpenFile(filepath.Join(dir, "missing.png")); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing file, got %v", err)
	}
}
