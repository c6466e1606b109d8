package translate

import (
	"context"
	"errors"
	"sync"
	"time"

	"pdf-translator/internal/element"
	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// ProgressCallback reports finished units out of total.
type ProgressCallback func(completed, total int)

// Options configures an Orchestrator.
type Options struct {
	Source      string
	Target      string
	ChunkLimit  int
	CallTimeout time.Duration
	Retry       RetryPolicy
	Progress    ProgressCallback
}

// Stats summarises one TranslateElements run.
type Stats struct {
	Units      int `json:"units"`
	Translated int `json:"translated"`
	Cached     int `json:"cached"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Orchestrator runs translation calls through a shared throttle with retry,
// chunking and an optional cache.
type Orchestrator struct {
	backend  Translator
	throttle *Throttle
	cache    Cache
	opts     Options
}

// NewOrchestrator creates an orchestrator. A nil throttle gets the default
// limits; a nil cache disables caching.
func NewOrchestrator(backend Translator, throttle *Throttle, cache Cache, opts Options) *Orchestrator {
	if throttle == nil {
		throttle = NewThrottle(DefaultConcurrency, DefaultPacing)
	}
	if opts.ChunkLimit <= 0 {
		opts.ChunkLimit = DefaultChunkLimit
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Retry.MaxAttempts <= 0 {
		sleep := opts.Retry.Sleep
		opts.Retry = DefaultRetryPolicy()
		opts.Retry.Sleep = sleep
	}
	return &Orchestrator{backend: backend, throttle: throttle, cache: cache, opts: opts}
}

// WithProgress returns an orchestrator sharing o's backend, throttle and
// cache that reports progress to cb.
func (o *Orchestrator) WithProgress(cb ProgressCallback) *Orchestrator {
	c := *o
	c.opts.Progress = cb
	return &c
}

// TranslateText translates one text unit. Long text is split into chunks
// that are translated one after another and joined with a single space.
func (o *Orchestrator) TranslateText(ctx context.Context, text string) (string, error) {
	out, _, err := o.translateText(ctx, text)
	return out, err
}

func (o *Orchestrator) translateText(ctx context.Context, text string) (string, bool, error) {
	key := CacheKey(o.opts.Source, o.opts.Target, text)
	if o.cache != nil {
		if v, ok, err := o.cache.Get(ctx, key); err != nil {
			logger.Warn("cache lookup failed", logger.Err(err))
		} else if ok {
			return v, true, nil
		}
	}

	chunks := SplitChunks(text, o.opts.ChunkLimit)
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		v, err := o.call(ctx, c)
		if err != nil {
			return "", false, err
		}
		parts = append(parts, v)
	}
	out := JoinChunks(parts)

	if o.cache != nil {
		if err := o.cache.Set(ctx, key, out); err != nil {
			logger.Warn("cache store failed", logger.Err(err))
		}
	}
	return out, false, nil
}

// call performs one retried backend call. The throttle slot is held only
// while the call is in flight, never during backoff.
func (o *Orchestrator) call(ctx context.Context, text string) (string, error) {
	return Retry(ctx, o.opts.Retry, func(ctx context.Context) (string, error) {
		if err := o.throttle.Acquire(ctx); err != nil {
			return "", err
		}
		defer o.throttle.Release()

		cctx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
		return o.backend.Translate(cctx, text, o.opts.Source, o.opts.Target)
	})
}

// CollectUnits returns pointers to the translatable elements of all pages.
func CollectUnits(pages [][]element.Element) []*element.Element {
	var units []*element.Element
	for p := range pages {
		for i := range pages[p] {
			if pages[p][i].IsTranslatable() {
				units = append(units, &pages[p][i])
			}
		}
	}
	return units
}

// TranslateElements translates every unit concurrently and writes each
// result into the unit's own Translated field. It returns after all calls
// have settled. Units whose retries run out keep their original text. The
// first permanent error cancels the remaining calls and is returned; results
// already written stay in place.
func (o *Orchestrator) TranslateElements(ctx context.Context, units []*element.Element) (Stats, error) {
	// Identical texts share one call.
	byText := make(map[string][]*element.Element)
	var order []string
	stats := Stats{}
	for _, u := range units {
		if !u.IsTranslatable() {
			continue
		}
		stats.Units++
		if _, ok := byText[u.Text.Text]; !ok {
			order = append(order, u.Text.Text)
		}
		byText[u.Text.Text] = append(byText[u.Text.Text], u)
	}
	if len(order) == 0 {
		return stats, nil
	}

	logger.Info("translating text units",
		logger.Int("units", stats.Units),
		logger.Int("distinct", len(order)),
		logger.Int("concurrency", o.throttle.Limit()))

	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	for _, text := range order {
		wg.Add(1)
		go func(text string, targets []*element.Element) {
			defer wg.Done()

			out, cached, err := o.translateText(gctx, text)

			mu.Lock()
			defer mu.Unlock()
			done += len(targets)
			if o.opts.Progress != nil {
				o.opts.Progress(done, stats.Units)
			}

			switch {
			case err == nil:
				for _, t := range targets {
					t.Text.Translated = out
				}
				stats.Translated += len(targets)
				if cached {
					stats.Cached += len(targets)
				}
			case gctx.Err() != nil && !errors.As(err, new(*Error)):
				stats.Skipped += len(targets)
			case Classify(err) == Permanent:
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				stats.Failed += len(targets)
			default:
				stats.Failed += len(targets)
				logger.Warn("translation gave up, keeping original text",
					logger.Int("page", targets[0].Page()),
					logger.Int("textLen", len(text)),
					logger.Err(err))
			}
		}(text, byText[text])
	}
	wg.Wait()

	logger.Info("translation phase finished",
		logger.Int("translated", stats.Translated),
		logger.Int("cached", stats.Cached),
		logger.Int("failed", stats.Failed),
		logger.Int("skipped", stats.Skipped))

	if firstErr != nil {
		return stats, types.NewPDFError(types.ErrTranslateFailed, "translation aborted", firstErr)
	}
	if err := ctx.Err(); err != nil {
		return stats, types.NewPDFError(types.ErrCancelled, "translation cancelled", err)
	}
	return stats, nil
}
