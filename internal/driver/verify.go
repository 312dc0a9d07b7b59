// Package driver runs the multi-file inspection pipeline: digest, decode,
// validate, with results cached and work fanned out across workers.
package driver

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"rgbobj/internal/objcache"
	"rgbobj/internal/objfile"
)

// Stage identifies a pipeline phase for progress reporting.
type Stage uint8

const (
	StageRead Stage = iota
	StageDecode
	StageCheck
)

// Status is a file's progress state.
type Status uint8

const (
	StatusQueued Status = iota
	StatusWorking
	StatusDone
	StatusError
)

// Event is one progress update. File is empty for stage-wide updates.
type Event struct {
	File   string
	Stage  Stage
	Status Status
}

// Sink receives progress events; implementations must not block forever.
type Sink interface {
	Send(Event)
}

// ChannelSink forwards events into a channel, dropping them when full so a
// stalled UI cannot wedge the pipeline.
type ChannelSink struct {
	Ch chan Event
}

func (s ChannelSink) Send(ev Event) {
	select {
	case s.Ch <- ev:
	default:
	}
}

// VerifyRequest configures a verification run.
type VerifyRequest struct {
	Files    []string
	Cache    *objcache.Cache // optional; nil disables caching
	Jobs     int             // worker count; <=0 means NumCPU
	Progress Sink            // optional
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path    string
	Summary *objcache.Summary
	Cached  bool
	Err     error
}

// VerifyResult holds per-file outcomes in input order.
type VerifyResult struct {
	Files []FileResult
}

// Ok reports whether every file decoded and validated.
func (r *VerifyResult) Ok() bool {
	for i := range r.Files {
		if r.Files[i].Err != nil || !r.Files[i].Summary.Valid {
			return false
		}
	}
	return true
}

// Verify decodes and validates every file concurrently. Per-file failures
// land in the result; only context cancellation aborts the run as a whole.
func Verify(ctx context.Context, req *VerifyRequest) (VerifyResult, error) {
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	res := VerifyResult{Files: make([]FileResult, len(req.Files))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range req.Files {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Files[i] = verifyOne(path, req.Cache, req.Progress)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func verifyOne(path string, cache *objcache.Cache, progress Sink) FileResult {
	send := func(stage Stage, status Status) {
		if progress != nil {
			progress.Send(Event{File: path, Stage: stage, Status: status})
		}
	}
	fail := func(err error) FileResult {
		send(StageCheck, StatusError)
		return FileResult{Path: path, Err: err}
	}

	send(StageRead, StatusWorking)
	key, err := objcache.DigestFile(path)
	if err != nil {
		return fail(err)
	}

	var cached objcache.Summary
	if hit, err := cache.Get(key, &cached); err == nil && hit {
		send(StageCheck, StatusDone)
		return FileResult{Path: path, Summary: &cached, Cached: true}
	}

	send(StageDecode, StatusWorking)
	obj, err := objfile.ReadFile(path)
	if err != nil {
		return fail(err)
	}

	send(StageCheck, StatusWorking)
	summary := objcache.Summarize(obj)
	// Кэш — это оптимизация: ошибку записи не считаем ошибкой файла
	_ = cache.Put(key, summary)

	send(StageCheck, StatusDone)
	return FileResult{Path: path, Summary: summary}
}
