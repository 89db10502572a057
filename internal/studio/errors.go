package studio

import (
	"errors"
	"fmt"

	"github.com/manash/prodstudio/internal/provider"
)

var (
	ErrNoSubject          = errors.New("subject image is required")
	ErrNoReference        = errors.New("reference image is required")
	ErrGenerationInFlight = errors.New("generation already in progress")
	ErrAnalysisInFlight   = errors.New("suggestion analysis in progress")
	ErrUpscaleInFlight    = errors.New("upscale already in progress")
	ErrBriefsInFlight     = errors.New("brief suggestions already in progress")
	ErrOffline            = errors.New("image service is unreachable")
	ErrNoArtifact         = errors.New("no generated image")
	ErrUnknownPreset      = errors.New("unknown preset")
	ErrNoSuchBrief        = errors.New("no such brief suggestion")

	// ErrSuperseded is returned when a response arrives for a request that is no longer active.
	ErrSuperseded = errors.New("request superseded")
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindCollaborator
	KindEmptyResult
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCollaborator:
		return "collaborator"
	case KindEmptyResult:
		return "empty_result"
	default:
		return "unknown"
	}
}

// Error is the value held in the session's current-error slot.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

const (
	opGenerate = "generate"
	opUpscale  = "upscale"
	opAnalyze  = "analyze"
	opBriefs   = "briefs"
	opToggle   = "toggle"
	opExport   = "export"
)

var validationMessages = map[error]string{
	ErrNoSubject:          "Please upload a product image.",
	ErrNoReference:        "Please upload a reference image.",
	ErrGenerationInFlight: "A generation is already in progress.",
	ErrAnalysisInFlight:   "Wait for the AI art director to finish analyzing.",
	ErrUpscaleInFlight:    "An upscale is already in progress.",
	ErrBriefsInFlight:     "Creative brief suggestions are already in progress.",
	ErrOffline:            "You appear to be offline. Check your connection and try again.",
}

func validationError(op string, err error) *Error {
	msg, ok := validationMessages[err]
	if !ok {
		msg = err.Error()
	}
	return &Error{Kind: KindValidation, Op: op, Message: msg, Err: err}
}

// busy reports whether err rejects a request because another one is running.
// Busy rejections are returned to the caller but never fill the error slot.
func busy(err error) bool {
	return errors.Is(err, ErrGenerationInFlight) || errors.Is(err, ErrAnalysisInFlight) ||
		errors.Is(err, ErrUpscaleInFlight) || errors.Is(err, ErrBriefsInFlight)
}

// remoteError classifies a collaborator error. Empty results get their own message.
func remoteError(op string, err error, failMsg, emptyMsg string) *Error {
	if provider.IsEmptyResult(err) {
		return &Error{Kind: KindEmptyResult, Op: op, Message: emptyMsg, Err: err}
	}
	return &Error{Kind: KindCollaborator, Op: op, Message: failMsg, Err: err}
}

func upscaleMessages(target fmt.Stringer) (string, string) {
	return "The AI failed to upscale the image. This could be due to a safety policy violation or an internal error.",
		fmt.Sprintf("Failed to upscale to %s.", target)
}

const (
	msgGenerateFailed = "The AI failed to generate an image. This could be due to a safety policy violation or an internal error."
	msgGenerateEmpty  = "The model did not return an image."
	msgAnalyzeFailed  = "Failed to get composite suggestions from AI."
	msgBriefsFailed   = "AI failed to generate creative prompt suggestions."
)
