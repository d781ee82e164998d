// Package validation checks user input before it reaches the wire.
//
// Failures are returned synchronously as *errclass.Error values with a
// validation kind and are never retried.
package validation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/rickgao/sketchduel/internal/errclass"
)

const (
	// MaxNameRunes is the longest accepted player name.
	MaxNameRunes = 20

	// RoomCodeLength is the exact length of a room code.
	RoomCodeLength = 6

	// MaxImageBytes bounds the decoded drawing payload.
	MaxImageBytes = 5 * 1024 * 1024

	// forbiddenNameChars are rejected in player names.
	forbiddenNameChars = `<>&"'`
)

// ImageTypes are the accepted drawing media types.
var ImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

var (
	validate *validator.Validate
	upper    = cases.Upper(language.Und)
)

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("nomarkup", validateNoMarkup)
}

func validateNoMarkup(fl validator.FieldLevel) bool {
	return !strings.ContainsAny(fl.Field().String(), forbiddenNameChars)
}

type nameInput struct {
	Name string `validate:"required,max=20,nomarkup"`
}

type roomCodeInput struct {
	Code string `validate:"required,len=6,alphanum"`
}

type imageInput struct {
	DataURL string `validate:"required,datauri"`
}

// PlayerName normalizes (NFC, trimmed) and validates a display name.
func PlayerName(raw string) (string, error) {
	name := strings.TrimSpace(norm.NFC.String(raw))
	if err := validate.Struct(nameInput{Name: name}); err != nil {
		return "", errclass.New(errclass.KindInvalidName, describe(err, "name"))
	}
	return name, nil
}

// RoomCode upper-cases and validates a room code.
func RoomCode(raw string) (string, error) {
	code := upper.String(strings.TrimSpace(raw))
	if err := validate.Struct(roomCodeInput{Code: code}); err != nil {
		return "", errclass.New(errclass.KindInvalidRoomCode, describe(err, "room code"))
	}
	return code, nil
}

// Image validates a drawing data URL. The declared media type must be one
// of ImageTypes, the decoded payload must not exceed MaxImageBytes, and the
// sniffed content type must match the declared one.
func Image(dataURL string) error {
	if err := validate.Struct(imageInput{DataURL: dataURL}); err != nil {
		return errclass.New(errclass.KindInvalidDrawingData, describe(err, "image"))
	}

	header, payload, _ := strings.Cut(strings.TrimPrefix(dataURL, "data:"), ",")
	mediaType, params, _ := strings.Cut(header, ";")
	if !slices.Contains(ImageTypes, mediaType) {
		return errclass.Newf(errclass.KindInvalidDrawingData, "unsupported media type %q", mediaType)
	}
	if !strings.Contains(params, "base64") {
		return errclass.New(errclass.KindInvalidDrawingData, "image must be base64 encoded")
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return tooLarge(int64(base64.StdEncoding.DecodedLen(len(payload))))
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errclass.Wrap(errclass.KindInvalidDrawingData, fmt.Errorf("decode image: %w", err))
	}
	if len(data) > MaxImageBytes {
		return tooLarge(int64(len(data)))
	}

	if sniffed := mimetype.Detect(data); !sniffed.Is(mediaType) {
		return errclass.Newf(errclass.KindInvalidDrawingData,
			"declared %s but content is %s", mediaType, sniffed.String())
	}
	return nil
}

// Vote checks that word is one of the offered options.
func Vote(word string, options []string) error {
	if word == "" {
		return errclass.New(errclass.KindInvalidVote, "no word selected")
	}
	if !slices.Contains(options, word) {
		return errclass.Newf(errclass.KindInvalidVote, "%q is not an offered word", word)
	}
	return nil
}

func tooLarge(n int64) error {
	return errclass.Newf(errclass.KindInvalidDrawingData, "image is %s, limit is %s",
		humanize.IBytes(uint64(n)), humanize.IBytes(MaxImageBytes))
}

// describe turns validator errors into a short user-facing reason.
func describe(err error, field string) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	switch fe := verrs[0]; fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "alphanum":
		return field + " must contain only letters and digits"
	case "nomarkup":
		return field + " must not contain < > & \" or '"
	case "datauri":
		return field + " must be a data URL"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
