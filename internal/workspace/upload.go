package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/navio/ally/internal/gateway"
	"github.com/navio/ally/internal/session"
)

// MaxUploadSize is the largest file the backend accepts.
const MaxUploadSize = 10 * 1024 * 1024

// UploadSuccessNotice is shown once the backend has accepted an upload.
const UploadSuccessNotice = "Files uploaded successfully. Summary has been sent to your email"

// AllowedExtensions lists the file types the backend can summarize.
var AllowedExtensions = []string{".pdf", ".mp4", ".wav"}

var (
	ErrNoFiles         = errors.New("no files to upload")
	ErrFileTooLarge    = errors.New("file exceeds the 10MB limit")
	ErrUnsupportedFile = errors.New("unsupported file type")
)

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// ValidateUpload checks every path before anything is sent.
func ValidateUpload(paths []string) error {
	if len(paths) == 0 {
		return ErrNoFiles
	}
	for _, p := range paths {
		if !allowedExtension(p) {
			return fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedFile, filepath.Base(p), strings.Join(AllowedExtensions, ", "))
		}
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", p, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", p)
		}
		if info.Size() > MaxUploadSize {
			return fmt.Errorf("%w: %s", ErrFileTooLarge, filepath.Base(p))
		}
	}
	return nil
}

// UploadFiles sends paths to the current project and refreshes its file
// list.
func (m *Manager) UploadFiles(ctx context.Context, paths []string) ([]string, error) {
	project := m.store.CurrentProject()
	if project == nil {
		m.notify.Notify(session.Notice{Level: session.LevelWarning, Text: "Select a project before uploading files."})
		return nil, ErrNoProject
	}
	if err := ValidateUpload(paths); err != nil {
		m.notify.Notify(session.Notice{Level: session.LevelWarning, Text: err.Error()})
		return nil, err
	}

	body := &gateway.Multipart{}
	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open file: %w", err)
		}
		closers = append(closers, f)
		body.Files = append(body.Files, gateway.FilePart{Field: "files", Name: filepath.Base(p), Content: f})
	}

	_, err := m.gw.Send(ctx, gateway.Request{
		Method:   http.MethodPost,
		Endpoint: FileUploadEndpoint,
		Query:    url.Values{"workspace_name": {project.Value}},
		Body:     body,
	})
	if err != nil {
		if !gateway.IsCanceled(err) {
			m.fail("Error uploading files", err)
		}
		return nil, err
	}

	m.notify.Notify(session.Notice{Level: session.LevelSuccess, Text: UploadSuccessNotice})
	return m.FetchFiles(ctx, project)
}
