package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gallery-feed/internal/domain/entity"
	"gallery-feed/internal/observability/logging"
)

// RecordSubmitter creates a record in the remote feed.
type RecordSubmitter interface {
	SubmitRecord(ctx context.Context, rec entity.NewRecord) error
}

// Invalidator is signalled once after every successful submission.
// *feed.Cache satisfies it.
type Invalidator interface {
	Invalidate()
}

// AssetUploader hosts a picked file and returns its public URL.
type AssetUploader interface {
	UploadAsset(ctx context.Context, file entity.FileInfo, content io.Reader) (string, error)
}

// Draft is the transient state of the form behind a submission.
type Draft struct {
	File        *entity.FileInfo
	Preview     string // local name of the picked file
	URL         string // hosted location, empty until the asset upload resolves
	Title       string
	Description string
}

// Empty reports whether nothing has been entered.
func (d Draft) Empty() bool {
	return d == Draft{}
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAssetUploader enables SelectFile.
func WithAssetUploader(u AssetUploader) Option {
	return func(p *Pipeline) {
		p.uploader = u
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithResetHook registers fn to run after the draft is cleared, for example
// to close the form that produced it.
func WithResetHook(fn func()) Option {
	return func(p *Pipeline) {
		p.onReset = fn
	}
}

// Pipeline submits new records. One submission runs at a time per Pipeline.
type Pipeline struct {
	submitter   RecordSubmitter
	invalidator Invalidator
	uploader    AssetUploader
	logger      *slog.Logger
	onReset     func()

	inFlight atomic.Bool

	mu    sync.Mutex
	draft Draft
	// generation changes whenever the draft is replaced, so an asset upload
	// that resolves afterwards does not write into the new draft.
	generation uint64
}

// NewPipeline creates a Pipeline that sends records through submitter and
// signals invalidator after each success.
func NewPipeline(submitter RecordSubmitter, invalidator Invalidator, opts ...Option) *Pipeline {
	p := &Pipeline{
		submitter:   submitter,
		invalidator: invalidator,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectFile validates file, uploads its content to the asset store and
// stores the resolved URL in the draft.
//
// A file that breaks a rule yields FieldErrors and nothing is uploaded.
// The draft keeps the file and its preview while the upload runs, so a
// Submit issued before it resolves reports MissingAsset.
func (p *Pipeline) SelectFile(ctx context.Context, file entity.FileInfo, content io.Reader) (string, entity.FieldErrors, error) {
	logger := p.loggerFor(ctx)

	if verr := entity.ValidateFile(&file); verr != nil {
		recordAssetUpload("invalid")
		return "", entity.FieldErrors{verr}, nil
	}
	if p.uploader == nil {
		return "", nil, ErrNoAssetUploader
	}

	p.mu.Lock()
	p.generation++
	gen := p.generation
	f := file
	p.draft.File = &f
	p.draft.Preview = file.Name
	p.draft.URL = ""
	p.mu.Unlock()

	url, err := p.uploader.UploadAsset(ctx, file, content)
	if err == nil {
		err = entity.ValidateAssetURL(url)
	}
	if err != nil {
		recordAssetUpload("error")
		logger.Warn("asset upload failed",
			slog.String("file", file.Name),
			slog.Int64("size", file.Size),
			slog.Any("error", err))
		return "", nil, fmt.Errorf("upload asset %q: %w", file.Name, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.generation {
		recordAssetUpload("dropped")
		return "", nil, ErrSelectionReplaced
	}
	p.draft.URL = url
	recordAssetUpload("success")
	logger.Info("asset uploaded",
		slog.String("file", file.Name),
		slog.String("url", url))
	return url, nil, nil
}

// Draft returns a copy of the current draft.
func (p *Pipeline) Draft() Draft {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.draft
	if d.File != nil {
		f := *d.File
		d.File = &f
	}
	return d
}

// Request records title and description in the draft and returns the
// submission built from it.
func (p *Pipeline) Request(title, description string) entity.UploadRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft.Title = title
	p.draft.Description = description
	req := entity.UploadRequest{
		Title:       title,
		Description: description,
		URL:         p.draft.URL,
	}
	if p.draft.File != nil {
		f := *p.draft.File
		req.File = &f
	}
	return req
}

// Reset clears the draft. An asset upload still running is dropped when it resolves.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	p.draft = Draft{}
	p.generation++
	p.mu.Unlock()

	if p.onReset != nil {
		p.onReset()
	}
}

// InFlight reports whether a submission is running. Callers use it to
// disable the control that triggers Submit.
func (p *Pipeline) InFlight() bool {
	return p.inFlight.Load()
}

// Submit validates req and creates the record.
//
// Validation failures and a missing hosted URL are reported without a
// network call. A failed create request is not retried, since repeating a
// create may duplicate the record. On success the feed is invalidated once.
// Whatever the outcome, the draft is cleared once, except for Rejected, which
// leaves the running submission untouched.
func (p *Pipeline) Submit(ctx context.Context, req entity.UploadRequest) Outcome {
	if !p.inFlight.CompareAndSwap(false, true) {
		recordSubmission(Rejected, 0)
		return Outcome{Kind: Rejected, Err: ErrSubmissionInFlight}
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	out := p.submit(ctx, req)
	p.Reset()
	recordSubmission(out.Kind, time.Since(start))

	logger := p.loggerFor(ctx)
	switch out.Kind {
	case Success:
		logger.Info("record submitted", slog.String("title", req.Title))
	case NetworkError:
		logger.Error("record submission failed",
			slog.String("title", req.Title),
			slog.Any("error", out.Err))
	default:
		logger.Info("record submission refused",
			slog.String("outcome", out.Kind.String()),
			slog.Any("error", out.cause()))
	}
	return out
}

func (p *Pipeline) submit(ctx context.Context, req entity.UploadRequest) Outcome {
	if errs := entity.ValidateUpload(req); len(errs) > 0 {
		return Outcome{Kind: ValidationFailed, FieldErrors: errs}
	}
	if req.URL == "" {
		return Outcome{
			Kind: MissingAsset,
			Err:  fmt.Errorf("%w: image url not resolved", entity.ErrMissingPrecondition),
		}
	}
	if err := p.submitter.SubmitRecord(ctx, req.NewRecord()); err != nil {
		return Outcome{Kind: NetworkError, Err: fmt.Errorf("submit record: %w", err)}
	}
	p.invalidator.Invalidate()
	return Outcome{Kind: Success}
}

func (p *Pipeline) loggerFor(ctx context.Context) *slog.Logger {
	logger := p.logger
	if l := logging.FromContext(ctx); l != slog.Default() {
		logger = l
	}
	return logging.WithRequestID(ctx, logger)
}

// cause returns the error carried by o, including field errors.
func (o Outcome) cause() error {
	if o.Err != nil {
		return o.Err
	}
	return o.FieldErrors.Err()
}
