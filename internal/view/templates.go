package view

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/odyssey-erp/odyssey-accounts/internal/shared"
	"github.com/odyssey-erp/odyssey-accounts/internal/users"
	"github.com/odyssey-erp/odyssey-accounts/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	CurrentUser *users.User
	Errors      shared.FieldErrors
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/*/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with a 200 status.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template into a buffer and writes it with status.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Page describes one rendered response.
type Page struct {
	Status   int
	Template string
	Title    string
	Errors   shared.FieldErrors
	// Flash is shown immediately instead of the queued session flash.
	Flash *shared.FlashMessage
	Data  any
}

// Responder fills TemplateData from the request before rendering.
type Responder struct {
	Templates *Engine
	CSRF      *shared.CSRFManager
	Logger    *slog.Logger
}

// Render writes page for r.
func (rs Responder) Render(w http.ResponseWriter, r *http.Request, page Page) {
	sess := shared.SessionFromContext(r.Context())
	var csrfToken string
	if sess != nil && rs.CSRF != nil {
		token, err := rs.CSRF.EnsureToken(r.Context(), sess)
		if err != nil {
			rs.logger().Warn("ensure csrf token", slog.Any("error", err))
		}
		csrfToken = token
	}
	flash := page.Flash
	if flash == nil && sess != nil {
		flash = sess.PopFlash()
	}
	status := page.Status
	if status == 0 {
		status = http.StatusOK
	}
	data := TemplateData{
		Title:       page.Title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		CurrentUser: users.CurrentFromContext(r.Context()),
		Errors:      page.Errors,
		Data:        page.Data,
	}
	if err := rs.Templates.RenderStatus(w, status, page.Template, data); err != nil {
		rs.logger().Error("render template", slog.String("template", page.Template), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (rs Responder) logger() *slog.Logger {
	if rs.Logger == nil {
		return slog.Default()
	}
	return rs.Logger
}
