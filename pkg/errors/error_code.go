/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const AvsPrefix = "Avs."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00–99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Collection-related errors
   02: Task-related errors
   03: Clickstream-related errors
   04: Model/deployment-related errors
   [yyy] Error code range (000–999)
*/

// public: 00xxx
const (
	InternalError    = AvsPrefix + "00001"
	BadRequest       = AvsPrefix + "00002"
	AlreadyExist     = AvsPrefix + "00003"
	NotFound         = AvsPrefix + "00004"
	Unavailable      = AvsPrefix + "00005"
	Canceled         = AvsPrefix + "00006"
	CapacityExceeded = AvsPrefix + "00007"
	Validation       = AvsPrefix + "00008"
)

// collection: 01xxx
const (
	CollectionNotFound = AvsPrefix + "01001"
	CannotDeleteBlue   = AvsPrefix + "01002"
	NoBlueCollection   = AvsPrefix + "01003"
	DimensionMismatch  = AvsPrefix + "01004"
)

// task: 02xxx
const (
	TaskNotFound           = AvsPrefix + "02001"
	InvalidStateTransition = AvsPrefix + "02002"
	TaskConflict           = AvsPrefix + "02003"
	TaskRefused            = AvsPrefix + "02004"
)

// clickstream: 03xxx
const (
	SessionNotFound      = AvsPrefix + "03001"
	BatchReleased        = AvsPrefix + "03002"
	PayloadSearchSession = AvsPrefix + "03003"
)

// model/deployment: 04xxx
const (
	ModelNotFound = AvsPrefix + "04001"
	DeployTimeout = AvsPrefix + "04002"
)

// IsAvs returns true if the specified error carries an AVS error reason.
func IsAvs(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(string(apierrors.ReasonForError(err)), AvsPrefix)
}

func IsBadRequest(err error) bool {
	return apierrors.ReasonForError(err) == BadRequest
}

func IsAlreadyExist(err error) bool {
	return apierrors.ReasonForError(err) == AlreadyExist
}

func IsInternal(err error) bool {
	return apierrors.ReasonForError(err) == InternalError
}

func IsNotFound(err error) bool {
	switch apierrors.ReasonForError(err) {
	case NotFound, CollectionNotFound, NoBlueCollection, TaskNotFound, SessionNotFound, ModelNotFound:
		return true
	}
	return false
}

func IsConflict(err error) bool {
	switch apierrors.ReasonForError(err) {
	case AlreadyExist, CannotDeleteBlue, TaskConflict, TaskRefused,
		InvalidStateTransition, BatchReleased, PayloadSearchSession:
		return true
	}
	return false
}

// IsValidation reports errors that must never be retried and surface as 422.
func IsValidation(err error) bool {
	switch apierrors.ReasonForError(err) {
	case Validation, DimensionMismatch:
		return true
	}
	return false
}

// IsRetryable reports transient dependency failures. Anything that is not an
// AVS-coded error (raw driver errors, timeouts) is considered retryable too,
// since the metadata store and broker surface plain errors on network loss.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if !IsAvs(err) {
		return true
	}
	return apierrors.ReasonForError(err) == Unavailable
}

func IsCanceled(err error) bool {
	return apierrors.ReasonForError(err) == Canceled
}

func IgnoreFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsAvs(err) {
		return ""
	}
	return string(apierrors.ReasonForError(err))
}

func newStatusError(httpCode int32, reason, message string) *apierrors.StatusError {
	return &apierrors.StatusError{ErrStatus: metav1.Status{
		Status:  metav1.StatusFailure,
		Code:    httpCode,
		Reason:  metav1.StatusReason(reason),
		Message: message,
	}}
}

func NewBadRequest(message string) *apierrors.StatusError {
	return newStatusError(http.StatusBadRequest, BadRequest, fmt.Sprintf("Bad request. %s", message))
}

func NewInternalError(message string) *apierrors.StatusError {
	return newStatusError(http.StatusInternalServerError, InternalError, fmt.Sprintf("Internal error. %s", message))
}

func NewAlreadyExist(message string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, AlreadyExist, message)
}

func NewNotFound(kind, name string) *apierrors.StatusError {
	return newStatusError(http.StatusNotFound, notFoundErrorCode(kind),
		fmt.Sprintf("%s %s not found.", kind, name))
}

func NewNotFoundWithMessage(message string) *apierrors.StatusError {
	return newStatusError(http.StatusNotFound, NotFound, message)
}

func NewUnavailable(message string) *apierrors.StatusError {
	return newStatusError(http.StatusServiceUnavailable, Unavailable, message)
}

func NewCanceled(message string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, Canceled, message)
}

func NewCapacityExceeded(message string) *apierrors.StatusError {
	return newStatusError(http.StatusTooManyRequests, CapacityExceeded, message)
}

func NewValidationError(message string) *apierrors.StatusError {
	return newStatusError(http.StatusUnprocessableEntity, Validation, message)
}

func NewDimensionMismatch(message string) *apierrors.StatusError {
	return newStatusError(http.StatusUnprocessableEntity, DimensionMismatch, message)
}

func NewCannotDeleteBlue(collectionId string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, CannotDeleteBlue,
		fmt.Sprintf("the collection %s is blue and cannot be deleted", collectionId))
}

func NewNoBlueCollection(message string) *apierrors.StatusError {
	return newStatusError(http.StatusNotFound, NoBlueCollection, message)
}

func NewInvalidStateTransition(taskId, from, to string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, InvalidStateTransition,
		fmt.Sprintf("task %s cannot move from %s to %s", taskId, from, to))
}

func NewTaskConflict(message string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, TaskConflict, message)
}

func NewTaskRefused(message string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, TaskRefused, message)
}

func NewBatchReleased(batchId string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, BatchReleased,
		fmt.Sprintf("the batch %s is already released", batchId))
}

func NewPayloadSearchSession(sessionId string) *apierrors.StatusError {
	return newStatusError(http.StatusConflict, PayloadSearchSession,
		fmt.Sprintf("the session %s is a payload search session", sessionId))
}

func NewDeployTimeout(modelId string) *apierrors.StatusError {
	return newStatusError(http.StatusServiceUnavailable, DeployTimeout,
		fmt.Sprintf("the model %s did not become ready in time", modelId))
}

const (
	CollectionKindName = "Collection"
	TaskKindName       = "Task"
	SessionKindName    = "Session"
	ModelKindName      = "EmbeddingModel"
)

func notFoundErrorCode(kind string) string {
	switch kind {
	case CollectionKindName:
		return CollectionNotFound
	case TaskKindName:
		return TaskNotFound
	case SessionKindName:
		return SessionNotFound
	case ModelKindName:
		return ModelNotFound
	default:
		return NotFound
	}
}
