// Package monitor periodically samples the server status, mirrors it to a
// status file and forwards it as performance samples.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/replication/internal/server"
	"github.com/OCAP2/replication/internal/storage"
	"github.com/OCAP2/replication/pkg/core"
)

// DefaultPeriod is used when Dependencies.Period is zero.
const DefaultPeriod = time.Second

// StatusSource provides the latest engine status.
type StatusSource interface {
	Status() server.Status
}

// SampleWriter receives performance samples, e.g. the influx manager.
type SampleWriter interface {
	WriteSample(s *core.PerformanceSample) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     StatusSource
	Logger     *slog.Logger
	StatusFile string // empty disables the status file
	Period     time.Duration
	Recorder   storage.PerformanceRecorder // optional
	Influx     SampleWriter                // optional
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	lastTick  uint64
	sampled   bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Period <= 0 {
		deps.Period = DefaultPeriod
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample takes one reading. It returns false when the engine has not
// advanced since the previous reading.
func (s *Service) Sample(statusFile *os.File) bool {
	status := s.deps.Source.Status()

	s.mu.Lock()
	if s.sampled && status.Tick == s.lastTick {
		s.mu.Unlock()
		return false
	}
	s.sampled = true
	s.lastTick = status.Tick
	s.mu.Unlock()

	logger := s.deps.Logger
	if statusFile != nil {
		if err := writeStatus(statusFile, status); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}

	sample := status.Sample()
	if s.deps.Recorder != nil {
		if err := s.deps.Recorder.RecordPerformance(&sample); err != nil {
			logger.Error("Error recording performance sample", "error", err)
		}
	}
	if s.deps.Influx != nil {
		if err := s.deps.Influx.WriteSample(&sample); err != nil {
			logger.Warn("Error writing performance sample to InfluxDB", "error", err)
		}
	}
	return true
}

func writeStatus(f *os.File, status server.Status) error {
	b, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(append(b, '\n'))
	return err
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if s.deps.Source == nil {
		s.mu.Unlock()
		return fmt.Errorf("monitor: no status source")
	}

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("creating status file: %w", err)
		}
		statusFile = f
	}

	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.deps.Logger.Debug("Starting status monitor", "period", s.deps.Period)
		ticker := time.NewTicker(s.deps.Period)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Sample(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
