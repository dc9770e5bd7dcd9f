package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nikhilbhutani/whisperapi/internal/stt"
)

// transcribeForm holds the optional multipart fields of an upload.
type transcribeForm struct {
	Language       string `form:"language" validate:"omitempty,max=16,alpha"`
	ResponseFormat string `form:"response_format" validate:"omitempty,oneof=text srt vtt json verbose_json"`
	Provider       string `form:"provider" validate:"omitempty,oneof=azure openai"`
}

type upload struct {
	file        multipart.File
	filename    string
	contentType string
	language    string
	format      stt.Format
	provider    stt.Variant
}

func (u *upload) Close() error { return u.file.Close() }

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	return v
}

// uploadError carries the status code the caller should answer with.
type uploadError struct {
	status int
	msg    string
}

func (e *uploadError) Error() string { return e.msg }

// parseUpload reads the multipart body, bounded by maxBytes. Files larger
// than the in-memory limit are spooled to disk by mime/multipart; callers
// must Close the upload and remove r.MultipartForm.
func parseUpload(w http.ResponseWriter, r *http.Request, v *validator.Validate, maxBytes int64) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &uploadError{http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d MB upload limit", maxBytes>>20)}
		}
		return nil, &uploadError{http.StatusBadRequest, "invalid multipart form"}
	}

	form := transcribeForm{
		Language:       strings.TrimSpace(r.FormValue("language")),
		ResponseFormat: r.FormValue("response_format"),
		Provider:       r.FormValue("provider"),
	}
	if err := v.Struct(form); err != nil {
		return nil, &uploadError{http.StatusUnprocessableEntity, formatValidationErrors(err)}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &uploadError{http.StatusUnprocessableEntity, "file is required"}
	}

	// Both parse calls accept the values validated above.
	format, _ := stt.ParseFormat(form.ResponseFormat)
	provider, _ := stt.ParseVariant(form.Provider)

	return &upload{
		file:        file,
		filename:    header.Filename,
		contentType: header.Header.Get("Content-Type"),
		language:    form.Language,
		format:      format,
		provider:    provider,
	}, nil
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (allowed: %s)", msg, fe.Param())
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, ", ")
}

func writeUploadError(w http.ResponseWriter, err error) {
	var ue *uploadError
	if errors.As(err, &ue) {
		writeError(w, ue.status, ue.msg)
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}
