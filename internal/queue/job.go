package queue

import (
	"errors"
	"time"
)

const MaxLogLines = 120

var (
	ErrNotFound          = errors.New("job not found")
	ErrDuplicate         = errors.New("duplicate download detected")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInternal          = errors.New("internal queue error")
)

type Mode string

const (
	ModeVideo Mode = "video"
	ModeAudio Mode = "audio"
)

// Extension returns the container extension produced for the mode.
func (m Mode) Extension() string {
	if m == ModeAudio {
		return "mp3"
	}
	return "mp4"
}

func (m Mode) Valid() bool {
	return m == ModeVideo || m == ModeAudio
}

type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCanceled    Status = "canceled"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

var transitions = map[Status][]Status{
	StatusQueued:      {StatusDownloading, StatusPaused, StatusCanceled, StatusFailed},
	StatusDownloading: {StatusQueued, StatusPaused, StatusCanceled, StatusCompleted, StatusFailed},
	StatusPaused:      {StatusQueued, StatusCanceled},
	StatusCanceled:    {StatusQueued},
	StatusFailed:      {StatusQueued},
	StatusCompleted:   {},
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the transition table allows moving from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal is true for statuses removed by ClearTerminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// IsLive is true for statuses that still claim their target path and block duplicates.
func (s Status) IsLive() bool {
	return s != StatusFailed && s != StatusCanceled
}

// Job is a single queue entry. Optional fields use pointers so they are
// omitted from the persisted document when unset.
type Job struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ThumbnailURL    *string   `json:"thumbnailUrl,omitempty"`
	URL             string    `json:"url"`
	Mode            Mode      `json:"mode"`
	QualityID       string    `json:"qualityId"`
	Status          Status    `json:"status"`
	ProgressPercent float64   `json:"progressPercent"`
	SpeedText       *string   `json:"speedText,omitempty"`
	ETAText         *string   `json:"etaText,omitempty"`
	OutputPath      *string   `json:"outputPath,omitempty"`
	TargetPath      *string   `json:"targetPath,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	RetryCount      int       `json:"retryCount"`
	DownloadLog     []string  `json:"downloadLog"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Clone returns a deep copy safe to hand to observers.
func (j *Job) Clone() Job {
	c := *j
	c.ThumbnailURL = cloneString(j.ThumbnailURL)
	c.SpeedText = cloneString(j.SpeedText)
	c.ETAText = cloneString(j.ETAText)
	c.OutputPath = cloneString(j.OutputPath)
	c.TargetPath = cloneString(j.TargetPath)
	c.ErrorMessage = cloneString(j.ErrorMessage)
	c.DownloadLog = append([]string{}, j.DownloadLog...)
	return c
}

// appendLog pushes a line onto the bounded log, collapsing consecutive duplicates.
func (j *Job) appendLog(line string) bool {
	if n := len(j.DownloadLog); n > 0 && j.DownloadLog[n-1] == line {
		return false
	}
	j.DownloadLog = append(j.DownloadLog, line)
	if overflow := len(j.DownloadLog) - MaxLogLines; overflow > 0 {
		j.DownloadLog = append([]string{}, j.DownloadLog[overflow:]...)
	}
	return true
}

func (j *Job) clearTransfer() {
	j.SpeedText = nil
	j.ETAText = nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type Snapshot struct {
	Items []Job `json:"items"`
}

// Downloading counts jobs currently in the downloading status.
func (s Snapshot) Downloading() int {
	n := 0
	for _, item := range s.Items {
		if item.Status == StatusDownloading {
			n++
		}
	}
	return n
}

func (s Snapshot) Find(id string) (Job, bool) {
	for _, item := range s.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Job{}, false
}

type DuplicateResult struct {
	IsDuplicate        bool    `json:"isDuplicate"`
	ExistingOutputPath *string `json:"existingOutputPath,omitempty"`
}

type EnqueueInput struct {
	URL            string  `yaml:"url"`
	Title          string  `yaml:"title,omitempty"`
	ThumbnailURL   *string `yaml:"thumbnail,omitempty"`
	Mode           Mode    `yaml:"mode"`
	QualityID      string  `yaml:"quality"`
	ForceDuplicate bool    `yaml:"force,omitempty"`
}
