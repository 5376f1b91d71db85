package mirror

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

// RunOptions adjusts a selection round.
type RunOptions struct {
	// SavePath overrides the target's save_path. When both are empty
	// no mirrorlist file is written.
	SavePath string
	// OnEvent is invoked for every progress event in completion order.
	// It runs on the consumer goroutine; it may be nil.
	OnEvent func(string)
	// OnProbeStart is invoked once with the number of mirrors about to
	// be probed; it may be nil.
	OnProbeStart func(int)
}

// Run executes one selection round for the named target: fetch and
// parse the mirror list, probe every eligible mirror, keep the ones
// serving the latest version, and optionally save the result as a
// pacman mirrorlist. The returned mirrors are ordered by probe
// completion.
func Run(ctx context.Context, config *Config, targetName string, opts RunOptions) ([]Mirror, error) {
	tc, ok := config.Targets[targetName]
	if !ok {
		return nil, errors.New("no such target: " + targetName)
	}

	mirrors, err := FetchMirrorList(ctx, config, tc)
	if err != nil {
		return nil, errors.Wrap(err, targetName)
	}
	slog.Info("mirror list fetched", "target", targetName, "mirrors", len(mirrors))
	if opts.OnProbeStart != nil {
		opts.OnProbeStart(len(mirrors))
	}

	// One event per probe plus the selector's summary event. The
	// capacity guarantees producers never block on a slow consumer.
	progress := make(chan string, len(mirrors)+1)
	var events []string
	var selected []Mirror

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(progress)
		versioned := NewProber(tc).VersionMirrors(gctx, mirrors, progress)
		selected = SelectLatest(versioned, progress)
		return nil
	})
	group.Go(func() error {
		for msg := range progress {
			events = append(events, msg)
			if opts.OnEvent != nil {
				opts.OnEvent(msg)
			}
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	slog.Info("selection complete", "target", targetName, "probed", len(mirrors), "selected", len(selected))

	savePath := opts.SavePath
	if savePath == "" {
		savePath = tc.SavePath
	}
	if savePath != "" {
		lines := make([]string, 0, len(events)+len(selected))
		for _, event := range events {
			lines = append(lines, tc.FormatComment(event))
		}
		for _, m := range selected {
			lines = append(lines, tc.FormatMirrorLine(m))
		}
		if err := SaveMirrorlist(savePath, lines); err != nil {
			return nil, errors.Wrap(err, targetName)
		}
		slog.Info("mirrorlist saved", "target", targetName, "path", savePath, "mirrors", len(selected))
	}

	return selected, nil
}
