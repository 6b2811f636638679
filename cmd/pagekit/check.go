package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ternarybob/pagekit/internal/app"
	"github.com/ternarybob/pagekit/internal/models"
	"github.com/ternarybob/pagekit/internal/services/page"
)

type checkOptions struct {
	RunID   string
	Workers int
	Path    string   // relative to navigation.base_url, or absolute
	Checks  []string // catalog keys, page.name
}

type workerResult struct {
	Worker      models.WorkerID
	SessionID   string
	FinalURL    string
	Matched     bool
	Screenshot  string
	DOMSnapshot string
	Elapsed     time.Duration
}

// runChecks fans out one worker per session. Each navigates, waits for every
// check locator to be visible and saves a screenshot. The first failure cancels the rest.
func runChecks(ctx context.Context, a *app.App, opts checkOptions) ([]workerResult, error) {
	if opts.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", opts.Workers)
	}
	checks := make(map[string]models.Locator, len(opts.Checks))
	for _, key := range opts.Checks {
		loc, err := a.Catalog.Lookup(key)
		if err != nil {
			return nil, err
		}
		checks[key] = loc
	}

	results := make([]workerResult, opts.Workers)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.Workers; i++ {
		worker := models.WorkerID(fmt.Sprintf("%s-w%d", opts.RunID, i+1))
		g.Go(func() error {
			res, err := runWorker(gctx, a, worker, opts.Path, checks)
			results[i] = res
			if err != nil {
				return fmt.Errorf("worker %s: %w", worker, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

func runWorker(ctx context.Context, a *app.App, worker models.WorkerID, path string, checks map[string]models.Locator) (workerResult, error) {
	start := time.Now()
	res := workerResult{Worker: worker}

	env, scope := a.PageEnv(worker)
	defer func() {
		if err := scope.Release(); err != nil {
			env.Logger.Warn().Err(err).Str("worker", worker.String()).Msg("Failed to release session")
		}
	}()

	sess, err := scope.Current(ctx)
	if err != nil {
		return res, err
	}
	res.SessionID = sess.ID()

	base := page.NewBase(env)
	nav, err := env.Nav.NavigateTo(ctx, base.URL(path))
	if err != nil {
		return res, err
	}
	res.FinalURL = nav.FinalURL
	res.Matched = nav.Matched

	for key, loc := range checks {
		if err := env.Elements.LocateNamed(key, loc).WaitVisible(ctx); err != nil {
			if a.Config.Screenshots.OnFailure {
				if shot, serr := base.Screenshot(ctx, worker.String()+"_failure"); serr == nil {
					res.Screenshot = shot
				}
				if dom, serr := base.SaveDOM(ctx, worker.String()+"_failure"); serr == nil {
					res.DOMSnapshot = dom
				}
			}
			return res, err
		}
		env.Logger.Debug().Str("worker", worker.String()).Str("locator", key).Msg("Check passed")
	}

	res.Screenshot, err = base.Screenshot(ctx, worker.String())
	res.Elapsed = time.Since(start)
	return res, err
}
