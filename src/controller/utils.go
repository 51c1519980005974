package controller

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"time"

	logger "github.com/sirupsen/logrus"

	"signalexecutor/src/model"
)

const serviceName = "signal_executor"

type exceptionRepository interface {
	Create(ctx context.Context, exception *model.Exception) error
}

// Capture persists a system exception for auditing alongside the local log
// line. A nil err is a no-op; a failed insert only logs, capture must never
// break the pipeline it observes.
func Capture(
	ctx context.Context,
	repo exceptionRepository,
	module string,
	method string,
	level string,
	err error,
	contextData map[string]interface{},
) {

	if err == nil {
		return
	}

	var ctxJSON string
	if contextData != nil {
		if b, e := json.Marshal(contextData); e == nil {
			ctxJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service:   serviceName,
		Module:    module,
		Method:    method,
		Message:   err.Error(),
		Stack:     string(debug.Stack()),
		Level:     level,
		Context:   ctxJSON,
		CreatedAt: time.Now(),
	}

	logger.WithFields(map[string]interface{}{
		"service": serviceName,
		"module":  module,
		"method":  method,
		"level":   level,
	}).WithError(err).Error("System exception captured")

	if repo == nil {
		return
	}
	if insertErr := repo.Create(ctx, exc); insertErr != nil {
		logger.WithError(insertErr).Error("Failed to persist exception")
	}
}
