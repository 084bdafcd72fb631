package desktop

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"posbridge/internal/alert"
	"posbridge/internal/alert/sound"
)

// minLoopPeriod keeps a player that exits immediately from spinning.
const minLoopPeriod = 250 * time.Millisecond

// DefaultPlayerArgs drives paplay. Placeholders: {file}, {volume} (0-65536)
// and {role}.
var DefaultPlayerArgs = []string{"--property=media.role={role}", "--volume={volume}", "{file}"}

// Player plays local tone files through an external command, once per
// run; looping playbacks rerun the command until stopped.
type Player struct {
	Command string
	Args    []string
	Log     *slog.Logger
}

var _ alert.AudioEngine = (*Player)(nil)

// NewPlayer returns a paplay-backed player when command is empty.
func NewPlayer(command string, args []string, log *slog.Logger) *Player {
	if command == "" {
		command = "paplay"
	}
	if args == nil {
		args = DefaultPlayerArgs
	}
	if log == nil {
		log = slog.Default()
	}
	return &Player{Command: command, Args: args, Log: log.With("component", "player")}
}

// NewPlayback validates the tone and the player binary; nothing plays
// until Start.
func (p *Player) NewPlayback(uri string, opts alert.PlaybackOptions) (alert.Playback, error) {
	path, ok := sound.Path(uri)
	if !ok {
		return nil, fmt.Errorf("desktop: unsupported sound uri %q", uri)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("desktop: sound %s: %w", path, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("desktop: sound %s is not a file", path)
	}
	bin, err := exec.LookPath(p.Command)
	if err != nil {
		return nil, fmt.Errorf("desktop: player: %w", err)
	}
	return &execPlayback{
		bin:  bin,
		args: expandArgs(p.Args, path, opts),
		loop: opts.Loop,
		log:  p.Log,
	}, nil
}

func expandArgs(tmpl []string, path string, opts alert.PlaybackOptions) []string {
	vol := opts.Volume
	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	r := strings.NewReplacer(
		"{file}", path,
		"{volume}", strconv.Itoa(int(vol*65536)),
		"{role}", string(opts.Usage),
	)
	out := make([]string, len(tmpl))
	for i, a := range tmpl {
		out[i] = r.Replace(a)
	}
	return out
}

type execPlayback struct {
	bin  string
	args []string
	loop bool
	log  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// Start launches the first run synchronously so a player that cannot start
// is reported to the caller.
func (pb *execPlayback) Start() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.started {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, pb.bin, pb.args...)
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("desktop: start %s: %w", pb.bin, err)
	}
	pb.cancel = cancel
	pb.done = make(chan struct{})
	pb.started = true
	go pb.run(ctx, cmd)
	return nil
}

func (pb *execPlayback) run(ctx context.Context, cmd *exec.Cmd) {
	defer close(pb.done)
	for {
		began := time.Now()
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			pb.log.Warn("player exited", "err", err)
		}
		if !pb.loop || ctx.Err() != nil {
			return
		}
		if wait := minLoopPeriod - time.Since(began); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
		cmd = exec.CommandContext(ctx, pb.bin, pb.args...)
		if err := cmd.Start(); err != nil {
			if ctx.Err() == nil {
				pb.log.Error("restart player", "err", err)
			}
			return
		}
	}
}

// Stop kills the running player. The handle cannot be restarted.
func (pb *execPlayback) Stop() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.cancel != nil {
		pb.cancel()
	}
	return nil
}

// Release stops the player and waits for it to exit.
func (pb *execPlayback) Release() error {
	pb.mu.Lock()
	cancel, done := pb.cancel, pb.done
	pb.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}
