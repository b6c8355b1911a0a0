package logging

import (
	"context"
	"log/slog"
	"reflect"
)

// SubSystem tags every log line so operators can filter the JSON stream
// per component.
type SubSystem string

const (
	System       SubSystem = "system"
	Config       SubSystem = "config"
	Chain        SubSystem = "chain"
	Secrets      SubSystem = "secrets"
	Wallet       SubSystem = "wallet"
	Registration SubSystem = "registration"
	Scheduler    SubSystem = "scheduler"
	Submission   SubSystem = "submission"
	Metrics      SubSystem = "metrics"
	Server       SubSystem = "server"
	Testing      SubSystem = "testing"
)

func Warn(msg string, subSystem SubSystem, keyvals ...interface{}) {
	withSubsystem := append([]interface{}{"subsystem", subSystem}, keyvals...)
	slog.Warn(msg, withSubsystem...)
}

func Info(msg string, subSystem SubSystem, keyvals ...interface{}) {
	withSubsystem := append([]interface{}{"subsystem", subSystem}, keyvals...)
	slog.Info(msg, withSubsystem...)
}

func Error(msg string, subSystem SubSystem, keyvals ...interface{}) {
	withSubsystem := append([]interface{}{"subsystem", subSystem}, keyvals...)

	// Check for error values and add their types
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			if err, ok := keyvals[i+1].(error); ok {
				errorType := reflect.TypeOf(err).String()
				withSubsystem = append(withSubsystem, "error-type", errorType)
			}
		}
	}

	slog.Error(msg, withSubsystem...)
}

func Debug(msg string, subSystem SubSystem, keyvals ...interface{}) {
	withSubsystem := append([]interface{}{"subsystem", subSystem}, keyvals...)
	slog.Debug(msg, withSubsystem...)
}

const TraceLevel = -8

func Trace(msg string, subSystem SubSystem, keyvals ...interface{}) {
	withSubsystem := append([]interface{}{"subsystem", subSystem}, keyvals...)
	slog.Log(context.Background(), TraceLevel, msg, withSubsystem...)
}
