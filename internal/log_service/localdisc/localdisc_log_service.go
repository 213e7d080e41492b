package localdisc

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AnishMulay/namestore/internal/log_service"
)

// LocalDiscLogService appends formatted log lines to one file per node under a
// log directory.
type LocalDiscLogService struct {
	logDir   string
	nodeID   string
	mu       sync.Mutex
	logger   *log.Logger
	minLevel int
}

func NewLocalDiscLogService(logDir string, nodeID string, minLogLevel string) *LocalDiscLogService {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Fatalf("failed to create log directory: %v", err)
	}

	filePath := filepath.Join(logDir, fmt.Sprintf("%s.log", nodeID))
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Fatalf("failed to open log file: %v", err)
	}

	service := &LocalDiscLogService{
		logDir:   logDir,
		nodeID:   nodeID,
		logger:   log.New(file, "", 0),
		minLevel: log_service.InfoLevelValue,
	}

	if minLogLevel != "" {
		service.SetMinLogLevel(minLogLevel)
	}

	return service
}

func (ls *LocalDiscLogService) SetMinLogLevel(level string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	normalized := strings.ToUpper(strings.TrimSpace(level))
	ls.minLevel = log_service.GetLevelValue(normalized)
}

func formatLog(level string, event log_service.LogEvent) string {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	meta := ""
	for k, v := range event.Metadata {
		meta += fmt.Sprintf("%s=%v ", k, v)
	}

	return fmt.Sprintf("%s [%s] %s: %s %s", ts.Format(time.RFC3339), event.NodeID, level, event.Message, meta)
}

func (ls *LocalDiscLogService) log(level string, event log_service.LogEvent) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if log_service.GetLevelValue(level) < ls.minLevel {
		return
	}

	event.NodeID = ls.nodeID
	ls.logger.Print(formatLog(level, event))
}

func (ls *LocalDiscLogService) Debug(event log_service.LogEvent) {
	ls.log(log_service.DebugLevel, event)
}

func (ls *LocalDiscLogService) Info(event log_service.LogEvent) {
	ls.log(log_service.InfoLevel, event)
}

func (ls *LocalDiscLogService) Warn(event log_service.LogEvent) {
	ls.log(log_service.WarnLevel, event)
}

func (ls *LocalDiscLogService) Error(event log_service.LogEvent) {
	ls.log(log_service.ErrorLevel, event)
}
