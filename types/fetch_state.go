package types

import "time"

// FetchStatus tags which variant a FetchState holds.
type FetchStatus string

const (
	StatusLoading FetchStatus = "loading"
	StatusSuccess FetchStatus = "success"
	StatusError   FetchStatus = "error"
)

// ErrorMessageLoadFailed is the only message an Error state ever carries.
const ErrorMessageLoadFailed = "Data Can't Be Loaded"

// FetchState is the outcome of the most recent request: Loading, Success with a
// payload, or Error with a message. Seq identifies the request that produced it.
type FetchState[T any] struct {
	Status    FetchStatus `json:"status"`
	Data      *T          `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Seq       uint64      `json:"seq"`
	Query     string      `json:"query,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Loading returns the in-flight variant for request seq.
func Loading[T any](seq uint64, query string) FetchState[T] {
	return FetchState[T]{Status: StatusLoading, Seq: seq, Query: query, UpdatedAt: time.Now()}
}

// Success returns the success variant carrying data.
func Success[T any](seq uint64, query string, data *T) FetchState[T] {
	return FetchState[T]{Status: StatusSuccess, Data: data, Seq: seq, Query: query, UpdatedAt: time.Now()}
}

// Failure returns the error variant carrying a human readable message.
func Failure[T any](seq uint64, query string, message string) FetchState[T] {
	return FetchState[T]{Status: StatusError, Message: message, Seq: seq, Query: query, UpdatedAt: time.Now()}
}

func (s FetchState[T]) IsLoading() bool { return s.Status == StatusLoading }
func (s FetchState[T]) IsSuccess() bool { return s.Status == StatusSuccess }
func (s FetchState[T]) IsError() bool   { return s.Status == StatusError }

// WeatherState is the FetchState held by a weather coordinator.
type WeatherState = FetchState[WeatherPayload]
