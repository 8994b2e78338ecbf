// Package logging provides categorized, config-driven logging for submind.
// Every subsystem logs through a named category so a deployment can silence
// noisy parts of the run-loop without losing the rest. Output is produced by a
// single process-wide zap logger.
package logging

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Boot/initialization
	CategoryAgent     Category = "agent"     // Agent run-loop, classification, dispatch
	CategoryResearch  Category = "research"  // Research campaigns
	CategoryAnswers   Category = "answers"   // Answer compilation
	CategoryAction    Category = "action"    // Action planning
	CategoryStore     Category = "store"     // Relational store
	CategoryDocstore  Category = "docstore"  // Memory documents
	CategoryKnowledge Category = "knowledge" // Knowledge index
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryLLM       Category = "llm"       // Text generation providers
	CategoryJobs      Category = "jobs"      // Research job service
	CategoryScheduler Category = "scheduler" // Tier scheduling, agent locks
	CategoryTaskGraph Category = "taskgraph" // Task dependency resolution
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // json, console
	File       string          // optional extra output path
	Categories map[string]bool // per-category toggles; missing = enabled
}

// Logger is a category-scoped printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	base       = zap.NewNop()
	categories map[string]bool
	loggers    = make(map[Category]*Logger)
)

// Initialize builds the process logger from options.
func Initialize(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	var cfg zap.Config
	if opts.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	SetLogger(logger, opts.Categories)
	Boot("logging initialized: level=%s format=%s", level, cfg.Encoding)
	return nil
}

// SetLogger replaces the process logger. Used by the CLI, which owns the root
// zap logger, and by tests that observe log output.
func SetLogger(l *zap.Logger, cats map[string]bool) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	defer mu.Unlock()
	base = l
	categories = cats
	loggers = make(map[Category]*Logger)
}

// Base returns the underlying zap logger.
func Base() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered output.
func Sync() {
	_ = Base().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if categories == nil {
		return true
	}
	enabled, exists := categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{
		category: category,
		sugar:    base.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

// With returns a logger carrying structured fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.Desugar().With(fields...).Sugar()}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

func Agent(format string, args ...interface{})      { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debug(format, args...) }
func AgentError(format string, args ...interface{}) { Get(CategoryAgent).Error(format, args...) }

func Research(format string, args ...interface{})      { Get(CategoryResearch).Info(format, args...) }
func ResearchDebug(format string, args ...interface{}) { Get(CategoryResearch).Debug(format, args...) }
func ResearchWarn(format string, args ...interface{})  { Get(CategoryResearch).Warn(format, args...) }
func ResearchError(format string, args ...interface{}) { Get(CategoryResearch).Error(format, args...) }

func Answers(format string, args ...interface{})      { Get(CategoryAnswers).Info(format, args...) }
func AnswersDebug(format string, args ...interface{}) { Get(CategoryAnswers).Debug(format, args...) }
func AnswersWarn(format string, args ...interface{})  { Get(CategoryAnswers).Warn(format, args...) }
func AnswersError(format string, args ...interface{}) { Get(CategoryAnswers).Error(format, args...) }

func Action(format string, args ...interface{})      { Get(CategoryAction).Info(format, args...) }
func ActionDebug(format string, args ...interface{}) { Get(CategoryAction).Debug(format, args...) }
func ActionWarn(format string, args ...interface{})  { Get(CategoryAction).Warn(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Error(format, args...) }

func Docstore(format string, args ...interface{})      { Get(CategoryDocstore).Info(format, args...) }
func DocstoreDebug(format string, args ...interface{}) { Get(CategoryDocstore).Debug(format, args...) }

func Knowledge(format string, args ...interface{})      { Get(CategoryKnowledge).Info(format, args...) }
func KnowledgeDebug(format string, args ...interface{}) { Get(CategoryKnowledge).Debug(format, args...) }
func KnowledgeWarn(format string, args ...interface{})  { Get(CategoryKnowledge).Warn(format, args...) }

func Embedding(format string, args ...interface{})      { Get(CategoryEmbedding).Info(format, args...) }
func EmbeddingDebug(format string, args ...interface{}) { Get(CategoryEmbedding).Debug(format, args...) }
func EmbeddingWarn(format string, args ...interface{})  { Get(CategoryEmbedding).Warn(format, args...) }

func LLM(format string, args ...interface{})      { Get(CategoryLLM).Info(format, args...) }
func LLMDebug(format string, args ...interface{}) { Get(CategoryLLM).Debug(format, args...) }
func LLMWarn(format string, args ...interface{})  { Get(CategoryLLM).Warn(format, args...) }

func Jobs(format string, args ...interface{})      { Get(CategoryJobs).Info(format, args...) }
func JobsDebug(format string, args ...interface{}) { Get(CategoryJobs).Debug(format, args...) }
func JobsWarn(format string, args ...interface{})  { Get(CategoryJobs).Warn(format, args...) }

func Scheduler(format string, args ...interface{})      { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{}) { Get(CategoryScheduler).Debug(format, args...) }
func SchedulerWarn(format string, args ...interface{})  { Get(CategoryScheduler).Warn(format, args...) }
func SchedulerError(format string, args ...interface{}) { Get(CategoryScheduler).Error(format, args...) }

func TaskGraphDebug(format string, args ...interface{}) { Get(CategoryTaskGraph).Debug(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
