package chat

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cloudzz-dev/memberchat/internal/platform/logger"
)

const (
	MaxImageBytes int64 = 10 * 1024 * 1024
	MaxVideoBytes int64 = 50 * 1024 * 1024
)

type Phase string

const (
	PhaseValidating  Phase = "validating"
	PhaseRequesting  Phase = "requesting"
	PhaseUploading   Phase = "uploading"
	PhaseRegistering Phase = "registering"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// File is a local file offered as an attachment.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// OpenFile describes the file at path, sniffing its MIME type from content.
func OpenFile(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, validationError("attach", fmt.Sprintf("Can't read %s.", filepath.Base(path)))
	}
	if info.IsDir() {
		return File{}, validationError("attach", fmt.Sprintf("%s is a directory.", filepath.Base(path)))
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return File{}, validationError("attach", fmt.Sprintf("Can't read %s.", filepath.Base(path)))
	}
	return File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: mt.String(),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// PendingUpload is the in-flight state of one attachment. It only lives for
// the duration of Pipeline.Upload.
type PendingUpload struct {
	File       File
	Validation error
	Target     *UploadTarget
	Phase      Phase
}

// UploadResult is either a success carrying the object path and the
// registered message, or a failure carrying the phase that failed.
type UploadResult struct {
	ObjectPath  string
	Message     Message
	FailedPhase Phase
	Err         error
}

func (r UploadResult) OK() bool { return r.Err == nil }

// Pipeline uploads attachments straight to object storage and registers
// them as messages afterwards.
type Pipeline struct {
	backend  Backend
	composer *Composer
	log      *logger.Logger
	events   *notifier
}

// Classify validates f against the media rules without touching the network.
func Classify(f File) (MessageType, error) {
	const op = "attach"
	ct := strings.ToLower(strings.TrimSpace(f.ContentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	var kind MessageType
	var limit int64
	switch {
	case strings.HasPrefix(ct, "image/"):
		kind, limit = MessageImage, MaxImageBytes
	case strings.HasPrefix(ct, "video/"):
		kind, limit = MessageVideo, MaxVideoBytes
	default:
		return "", &Error{Kind: KindUnsupportedMedia, Op: op, Msg: fmt.Sprintf("%s is not an image or video", f.ContentType)}
	}
	if f.Size > limit {
		return "", &Error{
			Kind:  KindPayloadTooLarge,
			Op:    op,
			Msg:   fmt.Sprintf("This %s is %s; the %s limit is %s.", kind, FormatBytes(f.Size), kind, FormatBytes(limit)),
			Limit: limit,
		}
	}
	return kind, nil
}

// Upload runs validate → request target → upload bytes → register. A
// failure in any phase stops the pipeline; a message is only created by
// the register phase, after the bytes are stored. The pipeline does not
// depend on the current selection, so leaving the thread does not abort it.
func (p *Pipeline) Upload(ctx context.Context, threadID string, f File) UploadResult {
	pu := &PendingUpload{File: f}
	log := p.log.With("thread_id", threadID, "file", f.Name)

	fail := func(err error) UploadResult {
		failed := pu.Phase
		pu.Phase = PhaseFailed
		p.emit(threadID, PhaseFailed)
		log.Warn("attachment failed", "phase", failed, "error", err)
		return UploadResult{FailedPhase: failed, Err: err}
	}

	p.advance(pu, threadID, PhaseValidating)
	if threadID == "" {
		pu.Validation = validationError("attach", "Pick a conversation first.")
		return fail(pu.Validation)
	}
	kind, err := Classify(f)
	if err != nil {
		pu.Validation = err
		return fail(err)
	}

	p.advance(pu, threadID, PhaseRequesting)
	target, err := p.backend.RequestUpload(ctx, UploadRequest{Name: f.Name, Size: f.Size, ContentType: f.ContentType})
	if err != nil {
		return fail(err)
	}
	if target.UploadURL == "" || target.ObjectPath == "" {
		return fail(&Error{Kind: KindServer, Op: "request upload", Msg: "server returned an incomplete upload target"})
	}
	switch {
	case target.MediaType == "":
		target.MediaType = kind
	case !target.MediaType.IsMedia():
		return fail(&Error{Kind: KindServer, Op: "request upload", Msg: fmt.Sprintf("server classified the file as %q", target.MediaType)})
	}
	pu.Target = &target

	p.advance(pu, threadID, PhaseUploading)
	if err := p.put(ctx, f, target); err != nil {
		return fail(err)
	}

	p.advance(pu, threadID, PhaseRegistering)
	msg, err := p.composer.Send(ctx, threadID, DefaultContent(target.MediaType), target.MediaType, target.ObjectPath)
	if err != nil {
		res := fail(err)
		res.ObjectPath = target.ObjectPath
		res.Message = msg
		return res
	}

	p.advance(pu, threadID, PhaseDone)
	log.Info("attachment sent", "object_path", target.ObjectPath, "media_type", target.MediaType)
	return UploadResult{ObjectPath: target.ObjectPath, Message: msg}
}

func (p *Pipeline) put(ctx context.Context, f File, target UploadTarget) error {
	if f.Open == nil {
		return &Error{Kind: KindUpload, Op: "upload", Msg: "no file contents"}
	}
	body, err := f.Open()
	if err != nil {
		return &Error{Kind: KindUpload, Op: "upload", Msg: "can't open file", Err: err}
	}
	defer body.Close()
	if err := p.backend.PutObject(ctx, target.UploadURL, f.ContentType, body, f.Size); err != nil {
		if KindOf(err) == KindUpload {
			return err
		}
		return &Error{Kind: KindUpload, Op: "upload", Err: err}
	}
	return nil
}

func (p *Pipeline) advance(pu *PendingUpload, threadID string, phase Phase) {
	pu.Phase = phase
	p.emit(threadID, phase)
}

func (p *Pipeline) emit(threadID string, phase Phase) {
	p.events.emit(Event{Kind: EventUpload, ThreadID: threadID, Phase: phase})
}
