package http

import (
	"embed"
	"html/template"
	"io"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/FilipeAphrody/sentinel-mfa/internal/domain"
	"github.com/FilipeAphrody/sentinel-mfa/internal/presenter"
)

const codeFieldTemplate = "codefield"

//go:embed templates/*.html
var templateFS embed.FS

// Renderer renders the embedded HTML templates for echo.Context.Render.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Renderer{templates: t}, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

// fieldView is the template data of one code field, read off its presenter.
type fieldView struct {
	CodeName  string
	StateName string
	State     string

	KeyExposed   bool
	DetailsShown bool
	// QRCode is a data: URI, which html/template would otherwise filter.
	QRCode template.URL
	Groups []string

	Issuer   string
	Username string
	Digits   int
	Period   uint64
	Mode     string

	ToggleURL  string
	OpenAction string
}

func newFieldView(p *presenter.CodeField, state string) fieldView {
	f := p.Field()

	toggle := url.Values{"state": {state}}
	if !p.DetailsShown() {
		toggle.Set("details", "shown")
	}

	return fieldView{
		CodeName:     f.Name,
		StateName:    domain.StateFieldName,
		State:        state,
		KeyExposed:   f.KeyExposed(),
		DetailsShown: p.DetailsShown(),
		QRCode:       template.URL(f.QRCode),
		Groups:       p.GroupedSecret(),
		Issuer:       f.Issuer,
		Username:     f.Username,
		Digits:       f.Digits,
		Period:       f.Period,
		Mode:         f.Mode,
		ToggleURL:    "field?" + toggle.Encode(),
		OpenAction:   "field/open?" + url.Values{"state": {state}}.Encode(),
	}
}
