package ml

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cipher-scan/internal/features"
)

// pythonClassifier serves a pickled scikit-learn estimator through one
// long-lived Python worker. The worker loads the artifact once at start and
// then answers newline-delimited JSON requests on stdin, one reply line per
// request on stdout. Replies carry the request id, so a reply that arrives
// after its caller timed out is dropped.
//
// A worker that exits is not restarted; every later call reports
// ErrModelUnavailable.
type pythonClassifier struct {
	pythonPath string
	modelPath  string
	timeout    time.Duration
	classes    int
	labels     []string

	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan struct{}

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan pythonResponse
	err     error
	closed  bool
}

type pythonRequest struct {
	ID       uint64    `json:"id"`
	Features []float64 `json:"features"`
}

type pythonResponse struct {
	ID            uint64    `json:"id"`
	Probabilities []float64 `json:"probabilities"`
	Classes       []string  `json:"classes,omitempty"`
	Error         string    `json:"error,omitempty"`
}

const workerScript = `
import json
import sys

def reply(msg):
    sys.stdout.write(json.dumps(msg) + "\n")
    sys.stdout.flush()

def main():
    try:
        import joblib
        import numpy as np
        model = joblib.load(sys.argv[1])
    except Exception as e:
        reply({"id": 0, "error": "failed to load model: %s" % e})
        sys.exit(1)

    classes = [str(c) for c in getattr(model, "classes_", [])]
    for line in sys.stdin:
        line = line.strip()
        if not line:
            continue
        req_id = 0
        try:
            request = json.loads(line)
            req_id = request["id"]
            x = np.array([request["features"]], dtype=float)
            probs = model.predict_proba(x)[0]
            reply({"id": req_id, "probabilities": [float(p) for p in probs], "classes": classes})
        except Exception as e:
            reply({"id": req_id, "error": str(e)})

if __name__ == "__main__":
    main()
`

// workerCloseTimeout bounds how long Close waits for the worker to exit after
// its stdin is closed before killing it.
const workerCloseTimeout = 2 * time.Second

func newPythonClassifier(modelPath string, opts LoadOptions) (*pythonClassifier, error) {
	pythonPath := opts.PythonPath
	if pythonPath == "" {
		p, err := findPython()
		if err != nil {
			return nil, err
		}
		pythonPath = p
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	pc := &pythonClassifier{
		pythonPath: pythonPath,
		modelPath:  modelPath,
		timeout:    timeout,
		done:       make(chan struct{}),
		pending:    make(map[uint64]chan pythonResponse),
	}
	if err := pc.start(); err != nil {
		return nil, fmt.Errorf("model health check failed: %w", err)
	}

	// Check once with the zero vector to learn the class count and make sure
	// the worker loaded the artifact.
	resp, err := pc.call(context.Background(), make([]float64, features.Size))
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("model health check failed: %w", err)
	}
	pc.classes = len(resp.Probabilities)
	pc.labels = namedClasses(resp.Classes)

	log.Info().
		Str("python_path", pythonPath).
		Str("model_path", modelPath).
		Int("pid", pc.cmd.Process.Pid).
		Int("classes", pc.classes).
		Msg("pickled model loaded into python worker")

	return pc, nil
}

func (pc *pythonClassifier) start() error {
	cmd := exec.Command(pc.pythonPath, "-c", workerScript, pc.modelPath)
	cmd.Stderr = stderrLogger{modelPath: pc.modelPath}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start python worker: %w", err)
	}

	pc.cmd = cmd
	pc.stdin = stdin
	go pc.readLoop(stdout)
	return nil
}

// readLoop dispatches reply lines to their callers until the worker's stdout
// closes, then reaps the process and fails everything still pending.
func (pc *pythonClassifier) readLoop(stdout io.Reader) {
	defer close(pc.done)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp pythonResponse
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			log.Warn().Err(err).Str("line", scanner.Text()).Msg("unparseable python worker output")
			continue
		}
		if resp.ID == 0 {
			pc.fail(fmt.Errorf("python worker: %s", resp.Error))
			continue
		}

		pc.mu.Lock()
		ch, ok := pc.pending[resp.ID]
		delete(pc.pending, resp.ID)
		pc.mu.Unlock()
		if ok {
			ch <- resp
		}
	}

	cause := scanner.Err()
	waitErr := pc.cmd.Wait()
	if cause == nil {
		cause = waitErr
	}
	if cause == nil {
		cause = errors.New("exited")
	}
	pc.fail(fmt.Errorf("python worker stopped: %w", cause))
}

// fail marks the worker dead with cause, keeping the first cause, and wakes
// every pending caller.
func (pc *pythonClassifier) fail(cause error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if pc.err == nil {
		pc.err = fmt.Errorf("%w: %v", ErrModelUnavailable, cause)
		if !pc.closed {
			log.Error().Err(cause).Str("model_path", pc.modelPath).Msg("python worker is gone, model unavailable")
		}
	}
	for id, ch := range pc.pending {
		close(ch)
		delete(pc.pending, id)
	}
}

// Err reports why the worker can no longer serve, or nil while it can.
func (pc *pythonClassifier) Err() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.err
}

// Close stops the worker. It is safe to call more than once.
func (pc *pythonClassifier) Close() error {
	pc.mu.Lock()
	if pc.closed {
		pc.mu.Unlock()
		return nil
	}
	pc.closed = true
	if pc.err == nil {
		pc.err = fmt.Errorf("%w: classifier closed", ErrModelUnavailable)
	}
	pc.mu.Unlock()

	if pc.cmd == nil {
		return nil
	}

	pc.writeMu.Lock()
	pc.stdin.Close()
	pc.writeMu.Unlock()

	select {
	case <-pc.done:
	case <-time.After(workerCloseTimeout):
		log.Warn().Str("model_path", pc.modelPath).Msg("python worker did not exit, killing it")
		pc.cmd.Process.Kill()
		<-pc.done
	}
	return nil
}

func (pc *pythonClassifier) Classes() int { return pc.classes }

func (pc *pythonClassifier) PredictProba(ctx context.Context, x []float64) ([]float64, error) {
	if len(x) != features.Size {
		return nil, fmt.Errorf("expected %d features, got %d", features.Size, len(x))
	}
	resp, err := pc.call(ctx, x)
	if err != nil {
		return nil, err
	}
	return resp.Probabilities, nil
}

func (pc *pythonClassifier) call(ctx context.Context, x []float64) (pythonResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, pc.timeout)
	defer cancel()

	ch := make(chan pythonResponse, 1)
	pc.mu.Lock()
	if pc.err != nil {
		err := pc.err
		pc.mu.Unlock()
		return pythonResponse{}, err
	}
	pc.nextID++
	id := pc.nextID
	pc.pending[id] = ch
	pc.mu.Unlock()

	line, err := json.Marshal(pythonRequest{ID: id, Features: x})
	if err != nil {
		pc.forget(id)
		return pythonResponse{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	pc.writeMu.Lock()
	_, err = pc.stdin.Write(append(line, '\n'))
	pc.writeMu.Unlock()
	if err != nil {
		// The worker is gone; let the reader record why before failing.
		select {
		case <-pc.done:
		case <-ctx.Done():
		}
		pc.fail(fmt.Errorf("write request: %w", err))
		return pythonResponse{}, pc.Err()
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return pythonResponse{}, pc.Err()
		}
		if resp.Error != "" {
			return resp, fmt.Errorf("python inference error: %s", resp.Error)
		}
		if len(resp.Probabilities) == 0 {
			return resp, fmt.Errorf("python inference returned no probabilities")
		}
		return resp, nil
	case <-ctx.Done():
		pc.forget(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pythonResponse{}, fmt.Errorf("python inference timed out after %v", pc.timeout)
		}
		return pythonResponse{}, ctx.Err()
	}
}

func (pc *pythonClassifier) forget(id uint64) {
	pc.mu.Lock()
	delete(pc.pending, id)
	pc.mu.Unlock()
}

// stderrLogger forwards worker stderr lines to the log.
type stderrLogger struct {
	modelPath string
}

func (l stderrLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			log.Warn().Str("model_path", l.modelPath).Str("stderr", line).Msg("python worker")
		}
	}
	return len(p), nil
}

// namedClasses returns the estimator's classes when they are label names.
// Estimators fitted on encoded targets report integer classes, which carry no
// names to check against the vocabulary.
func namedClasses(classes []string) []string {
	for _, c := range classes {
		if _, err := strconv.Atoi(c); err == nil {
			return nil
		}
	}
	return classes
}

// findPython looks for a Python 3 interpreter that can import joblib, preferring
// an active virtual environment.
func findPython() (string, error) {
	var candidates []string
	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidates = append(candidates,
			filepath.Join(venv, "bin", "python3"),
			filepath.Join(venv, "bin", "python"),
			filepath.Join(venv, "Scripts", "python.exe"),
		)
	}
	for _, name := range []string{"python3", "python"} {
		if p, err := exec.LookPath(name); err == nil {
			candidates = append(candidates, p)
		}
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cmd := exec.Command(p, "-c", "import sys, joblib; print('Python', sys.version)")
		if out, err := cmd.Output(); err == nil && strings.Contains(string(out), "Python 3") {
			log.Debug().Str("python_path", p).Msg("using python interpreter")
			return p, nil
		}
	}

	return "", fmt.Errorf("no Python 3 interpreter with joblib found")
}
